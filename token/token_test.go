package token

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

const sample = "v1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789_-"

func TestLooksLikeToken(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{sample, true},
		{sample + "\n", true},
		{"  " + sample + "  ", true},
		{"", false},
		{"short", false},
		{sample + "x", false},
		{strings.Repeat("a", 40), true},
		{strings.Repeat("a", 39) + "!", false},
		{strings.Repeat(" ", 40), false},
	}
	for _, c := range cases {
		if got := LooksLikeToken(c.in); got != c.want {
			t.Fatalf("LooksLikeToken(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// fakeClock drives a Poller without real sleeps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func TestPoller_AdoptsAndClearsOnMatch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	reads := []string{"", "not a token", sample + "\n"}
	cleared := false

	p := &Poller{
		Interval: 2 * time.Second,
		Deadline: 120 * time.Second,
		Read: func() (string, error) {
			v := reads[0]
			if len(reads) > 1 {
				reads = reads[1:]
			}
			return v, nil
		},
		Clear: func() error { cleared = true; return nil },
		Now:   clock.Now,
		Sleep: clock.Sleep,
	}

	got, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != sample {
		t.Fatalf("Wait = %q, want trimmed token", got)
	}
	if !cleared {
		t.Fatalf("clipboard was not cleared after adoption")
	}
}

func TestPoller_DeadlineExceeded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var polls int

	p := &Poller{
		Interval: 2 * time.Second,
		Deadline: 120 * time.Second,
		Read: func() (string, error) {
			polls++
			return "never a token", nil
		},
		Clear: func() error { t.Fatal("clear called without a match"); return nil },
		Now:   clock.Now,
		Sleep: clock.Sleep,
	}

	_, err := p.Wait(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	// 2s interval over a 120s window: one initial poll plus one per tick.
	if polls != 61 {
		t.Fatalf("polls = %d, want 61", polls)
	}
}

func TestPoller_ReadErrorsAreRetried(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0

	p := &Poller{
		Interval: 2 * time.Second,
		Deadline: 120 * time.Second,
		Read: func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("clipboard busy")
			}
			return sample, nil
		},
		Clear: func() error { return nil },
		Now:   clock.Now,
		Sleep: clock.Sleep,
	}

	got, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != sample {
		t.Fatalf("Wait = %q", got)
	}
}

func TestPoller_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Poller{
		Read:  func() (string, error) { return "", nil },
		Clear: func() error { return nil },
		Now:   time.Now,
		Sleep: func(time.Duration) {},
	}
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCreateURL(t *testing.T) {
	u := CreateURL("dns-wizard")
	if !strings.HasPrefix(u, "https://dash.cloudflare.com/profile/api-tokens?") {
		t.Fatalf("unexpected url: %s", u)
	}
	for _, want := range []string{"name=dns-wizard", "permissionGroupKeys=", "workers_scripts"} {
		if !strings.Contains(u, want) {
			t.Fatalf("url %s missing %q", u, want)
		}
	}
}

func TestManual_Prompt(t *testing.T) {
	var out strings.Builder
	m := &Manual{In: strings.NewReader(sample + "\n"), Out: &out}
	got, err := m.Prompt()
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if got != sample {
		t.Fatalf("Prompt = %q", got)
	}
	if !strings.Contains(out.String(), "API token") {
		t.Fatalf("prompt text missing: %q", out.String())
	}
}

func TestManual_MasksInputOnTerminal(t *testing.T) {
	prevIsTerminal := isTerminal
	prevReadPassword := readPassword
	t.Cleanup(func() {
		isTerminal = prevIsTerminal
		readPassword = prevReadPassword
	})

	tty, err := os.CreateTemp(t.TempDir(), "tty")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer tty.Close()

	isTerminal = func(fd int) bool { return fd == int(tty.Fd()) }
	masked := false
	readPassword = func(fd int) ([]byte, error) {
		masked = true
		return []byte(sample), nil
	}

	m := &Manual{In: strings.NewReader("echoed-line-input\n"), TTY: tty, Out: &strings.Builder{}}
	got, err := m.Prompt()
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if !masked {
		t.Fatalf("terminal input was not read through the masked path")
	}
	if got != sample {
		t.Fatalf("Prompt = %q, want masked read result", got)
	}
}

func TestManual_FallsBackToLineReadWhenNotTerminal(t *testing.T) {
	prevIsTerminal := isTerminal
	prevReadPassword := readPassword
	t.Cleanup(func() {
		isTerminal = prevIsTerminal
		readPassword = prevReadPassword
	})

	tty, err := os.CreateTemp(t.TempDir(), "tty")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer tty.Close()

	isTerminal = func(int) bool { return false }
	readPassword = func(int) ([]byte, error) {
		t.Fatal("masked read used without a terminal")
		return nil, nil
	}

	m := &Manual{In: strings.NewReader(sample + "\n"), TTY: tty, Out: &strings.Builder{}}
	got, err := m.Prompt()
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if got != sample {
		t.Fatalf("Prompt = %q", got)
	}
}

func TestManual_EmptyIsFatal(t *testing.T) {
	m := &Manual{In: strings.NewReader("\n"), Out: &strings.Builder{}}
	if _, err := m.Prompt(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}
