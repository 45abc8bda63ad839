// Package token obtains a Cloudflare API token from the user, either by
// a masked prompt or by opening the dashboard's token-creation page and
// watching the clipboard until something token-shaped lands on it.
package token

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/cli/browser"
	"golang.org/x/term"
)

const (
	pollInterval = 2 * time.Second
	pollDeadline = 120 * time.Second
)

var (
	ErrEmpty   = errors.New("api token is empty")
	ErrTimeout = errors.New("timed out waiting for an api token on the clipboard; run the tool again once the token is created")
)

// Cloudflare API tokens are 40 characters of [A-Za-z0-9_-].
var shapeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{40}$`)

// LooksLikeToken reports whether s (whitespace-trimmed) has the shape of
// an API token.
func LooksLikeToken(s string) bool {
	return shapeRe.MatchString(strings.TrimSpace(s))
}

// CreateURL builds a dashboard link that opens the token-creation form
// pre-scoped with the permissions the deploy needs.
func CreateURL(name string) string {
	perms := `[` +
		`{"key":"workers_scripts","type":"edit"},` +
		`{"key":"workers_subdomain","type":"edit"},` +
		`{"key":"account_settings","type":"read"},` +
		`{"key":"user_details","type":"read"}]`
	q := url.Values{}
	q.Set("name", name)
	q.Set("permissionGroupKeys", perms)
	q.Set("accountId", "*")
	return "https://dash.cloudflare.com/profile/api-tokens?" + q.Encode()
}

// PollingSupported reports whether the clipboard-watching flow can work
// in this environment.
func PollingSupported() bool {
	return !clipboard.Unsupported
}

// Poller waits for a token-shaped value to appear on the clipboard.
// Read, Clear, Now and Sleep default to the real clipboard and clock;
// tests inject their own.
type Poller struct {
	Interval time.Duration
	Deadline time.Duration

	Read  func() (string, error)
	Clear func() error
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Wait polls until a token-shaped value appears, the deadline passes,
// or ctx is done. On a match the clipboard is cleared so the secret does
// not linger in a resource every other program can read.
func (p *Poller) Wait(ctx context.Context) (string, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = pollInterval
	}
	deadline := p.Deadline
	if deadline <= 0 {
		deadline = pollDeadline
	}
	read := p.Read
	if read == nil {
		read = clipboard.ReadAll
	}
	clear := p.Clear
	if clear == nil {
		clear = func() error { return clipboard.WriteAll("") }
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	stop := now().Add(deadline)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if v, err := read(); err == nil {
			if t := strings.TrimSpace(v); shapeRe.MatchString(t) {
				_ = clear()
				return t, nil
			}
		}
		if !now().Before(stop) {
			return "", ErrTimeout
		}
		sleep(interval)
	}
}

// AcquireAssisted opens the pre-scoped dashboard page (printing the URL
// when no browser can be opened) and waits for the new token to be
// copied to the clipboard.
func AcquireAssisted(ctx context.Context, out io.Writer, tokenName string) (string, error) {
	u := CreateURL(tokenName)
	if err := browser.OpenURL(u); err != nil {
		fmt.Fprintln(out, "Could not open a browser. Create the token here:")
		fmt.Fprintln(out, "  "+u)
	}
	fmt.Fprintln(out, "Create the token, then copy it to the clipboard. Watching for up to 2 minutes...")

	p := &Poller{}
	return p.Wait(ctx)
}

var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

// Manual prompts for a token. When TTY is set and is a real terminal
// the input is masked; otherwise a line is read from In.
type Manual struct {
	In  io.Reader
	TTY *os.File
	Out io.Writer

	// ReadSecret overrides the default read; tests use it.
	ReadSecret func() (string, error)
}

func (m *Manual) Prompt() (string, error) {
	fmt.Fprint(m.Out, "Paste your Cloudflare API token: ")
	read := m.ReadSecret
	if read == nil {
		read = m.defaultRead
	}
	v, err := read()
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrEmpty
	}
	return v, nil
}

func (m *Manual) defaultRead() (string, error) {
	if m.TTY != nil && isTerminal(int(m.TTY.Fd())) {
		b, err := readPassword(int(m.TTY.Fd()))
		fmt.Fprintln(m.Out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	// Reuse the caller's reader when it is already buffered; wrapping
	// it again would swallow input meant for later prompts.
	br, ok := m.In.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(m.In)
	}
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
