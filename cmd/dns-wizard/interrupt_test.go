package main

import (
	"strings"
	"testing"
)

func TestOnInterrupt(t *testing.T) {
	var out strings.Builder
	code := -1
	onInterrupt(&out, func(c int) { code = c })

	if code != 130 {
		t.Fatalf("exit code = %d, want 130", code)
	}
	if !strings.Contains(out.String(), "interrupted") {
		t.Fatalf("message = %q", out.String())
	}
}
