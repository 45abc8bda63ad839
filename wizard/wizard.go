// Package wizard drives the interactive deploy: token, account,
// worker name, workers.dev subdomain, confirmation, upload. The flow is
// strictly linear; any failure aborts the run and nothing already
// created on the platform is rolled back (a freshly registered
// subdomain survives a later deploy failure -- the platform offers no
// way to release one anyway).
package wizard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mdp/qrterminal/v3"

	"github.com/sinaha81/dns-wizard/cloudflare"
	"github.com/sinaha81/dns-wizard/token"
)

const scriptFetchTimeout = 60 * time.Second

// API is the slice of the Cloudflare client the flow needs.
type API interface {
	VerifyToken(ctx context.Context) error
	Accounts(ctx context.Context) ([]cloudflare.Account, error)
	WorkerSubdomain(ctx context.Context, accountID string) (string, error)
	CreateWorkerSubdomain(ctx context.Context, accountID, name string) (string, error)
	DeployWorker(ctx context.Context, accountID, workerName string, script []byte) error
}

type Options struct {
	// ScriptURL serves the worker script to deploy.
	ScriptURL string
	// WorkerDomain is the public suffix workers are served under.
	WorkerDomain string
	// TokenName is the suggested name for a freshly created API token.
	TokenName string

	In  io.Reader
	Out io.Writer

	// NewClient builds the API client once a token is in hand.
	NewClient func(token string) API

	// Assisted overrides the browser/clipboard token flow in tests.
	Assisted func(ctx context.Context, out io.Writer, name string) (string, error)
	// PollingSupported overrides the clipboard availability check in tests.
	PollingSupported func() bool
}

// Session is the state threaded through the stages. The token is held
// as bytes so Scrub can zero it; it never touches disk or logs.
type Session struct {
	token []byte

	Account    cloudflare.Account
	WorkerName string
	Subdomain  string
}

func (s *Session) SetToken(t string) { s.token = []byte(t) }
func (s *Session) Token() string     { return string(s.token) }

// Scrub zeroes the token. Called on every exit path, success or not.
func (s *Session) Scrub() {
	for i := range s.token {
		s.token[i] = 0
	}
	s.token = nil
}

// Run executes the full deploy flow. A nil return with no deployment
// means the user declined the confirmation.
func Run(ctx context.Context, opts Options) error {
	in := bufio.NewReader(opts.In)
	out := opts.Out

	sess := &Session{}
	defer sess.Scrub()

	tok, err := acquireToken(ctx, opts, in, out)
	if err != nil {
		return err
	}
	sess.SetToken(tok)

	api := opts.NewClient(sess.Token())
	if err := api.VerifyToken(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Token verified.")

	account, err := selectAccount(ctx, api, in, out)
	if err != nil {
		return err
	}
	sess.Account = account

	name, err := promptLine(in, out, "Worker name: ")
	if err != nil {
		return err
	}
	sess.WorkerName = Slugify(name)
	if sess.WorkerName == "" {
		return errors.New("worker name is empty")
	}

	sub, err := ensureSubdomain(ctx, api, account.ID, in, out)
	if err != nil {
		return err
	}
	sess.Subdomain = sub

	workerURL := fmt.Sprintf("https://%s.%s.%s", sess.WorkerName, sess.Subdomain, opts.WorkerDomain)
	ok, err := confirm(in, out, fmt.Sprintf("Deploy %q to %s? [y/N] ", sess.WorkerName, workerURL), false)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Cancelled. Nothing was deployed.")
		return nil
	}

	script, err := fetchScript(ctx, opts.ScriptURL)
	if err != nil {
		return err
	}
	if err := api.DeployWorker(ctx, account.ID, sess.WorkerName, script); err != nil {
		return err
	}

	report(out, workerURL)
	return nil
}

func acquireToken(ctx context.Context, opts Options, in *bufio.Reader, out io.Writer) (string, error) {
	supported := token.PollingSupported
	if opts.PollingSupported != nil {
		supported = opts.PollingSupported
	}
	assisted := token.AcquireAssisted
	if opts.Assisted != nil {
		assisted = opts.Assisted
	}

	if supported() {
		ok, err := confirm(in, out, "Create the API token in your browser? [Y/n] ", true)
		if err != nil {
			return "", err
		}
		if ok {
			return assisted(ctx, out, opts.TokenName)
		}
	}

	// The buffered reader serves the prompts, but masking needs the
	// underlying file descriptor when stdin is a terminal.
	var tty *os.File
	if f, ok := opts.In.(*os.File); ok {
		tty = f
	}
	m := &token.Manual{In: in, TTY: tty, Out: out}
	return m.Prompt()
}

func selectAccount(ctx context.Context, api API, in *bufio.Reader, out io.Writer) (cloudflare.Account, error) {
	accounts, err := api.Accounts(ctx)
	if err != nil {
		return cloudflare.Account{}, err
	}
	switch len(accounts) {
	case 0:
		return cloudflare.Account{}, errors.New("no accounts are visible to this token")
	case 1:
		fmt.Fprintf(out, "Using account %s.\n", accounts[0].Name)
		return accounts[0], nil
	}

	fmt.Fprintln(out, "Accounts:")
	for i, a := range accounts {
		fmt.Fprintf(out, "  %d. %s\n", i+1, a.Name)
	}
	line, err := promptLine(in, out, fmt.Sprintf("Select an account [1-%d]: ", len(accounts)))
	if err != nil {
		return cloudflare.Account{}, err
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(accounts) {
		return cloudflare.Account{}, fmt.Errorf("invalid selection %q", line)
	}
	return accounts[n-1], nil
}

// ensureSubdomain adopts the account's existing workers.dev subdomain
// when one is registered; only an account with none gets the prompt and
// the mutating registration call.
func ensureSubdomain(ctx context.Context, api API, accountID string, in *bufio.Reader, out io.Writer) (string, error) {
	sub, err := api.WorkerSubdomain(ctx, accountID)
	if err != nil {
		return "", err
	}
	if sub != "" {
		fmt.Fprintf(out, "Using existing subdomain %s.\n", sub)
		return sub, nil
	}

	fmt.Fprintln(out, "This account has no workers.dev subdomain yet. It can be registered once and cannot be changed later.")
	name, err := promptLine(in, out, "Subdomain to register: ")
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errors.New("subdomain is empty")
	}
	registered, err := api.CreateWorkerSubdomain(ctx, accountID, name)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "Registered subdomain %s.\n", registered)
	return registered, nil
}

func fetchScript(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = scriptFetchTimeout
	resp, err := rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch worker script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch worker script: http %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch worker script: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("fetch worker script: empty body")
	}
	return b, nil
}

// Slugify turns free-text input into a worker name: lowercase,
// whitespace runs become hyphens, everything outside [a-z0-9-] is
// dropped.
func Slugify(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func promptLine(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm reads a yes/no answer; an empty line takes def.
func confirm(in *bufio.Reader, out io.Writer, prompt string, def bool) (bool, error) {
	line, err := promptLine(in, out, prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	case "":
		return def, nil
	default:
		return false, nil
	}
}

func report(out io.Writer, workerURL string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Deployed:", workerURL)
	fmt.Fprintln(out, "Scan to open it on your phone:")
	qrterminal.GenerateHalfBlock(workerURL, qrterminal.L, out)
}
