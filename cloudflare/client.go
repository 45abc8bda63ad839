// Package cloudflare is a minimal client for the five v4 API calls the
// deploy flow needs. Responses are read with the narrow extract helpers
// rather than full decoding; the API's envelope shape is stable and that
// is all this tool depends on.
package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sinaha81/dns-wizard/extract"
)

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

const maxResponseSize = int64(2 << 20)

// Account is one account visible to a token.
type Account struct {
	ID   string
	Name string
}

type Client struct {
	BaseURL string

	token string
	rc    *retryablehttp.Client
}

func New(token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second
	return &Client{BaseURL: DefaultBaseURL, token: token, rc: rc}
}

// VerifyToken checks the token against /user/tokens/verify and returns
// the platform's rejection message on failure.
func (c *Client) VerifyToken(ctx context.Context) error {
	_, body, err := c.do(ctx, http.MethodGet, "/user/tokens/verify", nil, "")
	if err != nil {
		return err
	}
	if !extract.FlagTrue(body, "success") {
		if msg, ok := extract.StringField(body, "message"); ok {
			return fmt.Errorf("token rejected: %s", msg)
		}
		return errors.New("token rejected")
	}
	return nil
}

// Accounts lists the accounts visible to the token, in API order.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/accounts", nil, "")
	if err != nil {
		return nil, err
	}
	if !extract.FlagTrue(body, "success") {
		if msg, ok := extract.StringField(body, "message"); ok {
			return nil, fmt.Errorf("list accounts: %s", msg)
		}
		return nil, errors.New("list accounts failed")
	}
	var accounts []Account
	for _, p := range extract.Pairs(body, "id", "name") {
		accounts = append(accounts, Account{ID: p[0], Name: p[1]})
	}
	return accounts, nil
}

// WorkerSubdomain returns the account's workers.dev subdomain, or ""
// when none has been registered yet. Only the documented not-found
// shapes (404, or a success envelope with a null result) read as
// "none"; anything else is an API failure and must not be mistaken for
// a missing subdomain, or the caller would try to register one on an
// account that may already have it.
func (c *Client) WorkerSubdomain(ctx context.Context, accountID string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/workers/subdomain", nil, "")
	if err != nil {
		return "", err
	}
	if sub, ok := extract.StringField(body, "subdomain"); ok {
		return sub, nil
	}
	if status == http.StatusNotFound || extract.FlagTrue(body, "success") {
		return "", nil
	}
	if msg, ok := extract.StringField(body, "message"); ok {
		return "", fmt.Errorf("fetch subdomain: %s", msg)
	}
	return "", fmt.Errorf("fetch subdomain failed (http %d)", status)
}

// CreateWorkerSubdomain registers name as the account's workers.dev
// subdomain. The server may normalize the name, so the returned value
// is what the platform actually registered. Registration is permanent;
// the caller confirms with the user before getting here.
func (c *Client) CreateWorkerSubdomain(ctx context.Context, accountID, name string) (string, error) {
	payload, err := json.Marshal(map[string]string{"subdomain": name})
	if err != nil {
		return "", err
	}
	_, body, err := c.do(ctx, http.MethodPut, "/accounts/"+accountID+"/workers/subdomain", payload, "application/json")
	if err != nil {
		return "", err
	}
	if !extract.FlagTrue(body, "success") {
		if msg, ok := extract.StringField(body, "message"); ok {
			return "", fmt.Errorf("register subdomain: %s", msg)
		}
		return "", errors.New("register subdomain failed")
	}
	if sub, ok := extract.StringField(body, "subdomain"); ok {
		return sub, nil
	}
	return name, nil
}

// DeployWorker uploads script as the account's worker named workerName.
// Success requires both HTTP 200 and the envelope's success flag.
func (c *Client) DeployWorker(ctx context.Context, accountID, workerName string, script []byte) error {
	status, body, err := c.do(ctx, http.MethodPut, "/accounts/"+accountID+"/workers/scripts/"+workerName, script, "application/javascript")
	if err != nil {
		return err
	}
	if status != http.StatusOK || !extract.FlagTrue(body, "success") {
		msg, ok := extract.StringField(body, "message")
		if !ok {
			msg = "deployment rejected by the api"
		}
		return fmt.Errorf("deploy failed (http %d): %s", status, msg)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (int, []byte, error) {
	var rawBody any
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.BaseURL+path, rawBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}
