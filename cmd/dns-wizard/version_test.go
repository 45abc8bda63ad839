package main

import (
	"runtime/debug"
	"testing"
)

func TestResolveVersion(t *testing.T) {
	cases := []struct {
		name      string
		version   string
		buildInfo string
		want      string
	}{
		{"explicit version wins", "1.2.3", "v9.9.9", "1.2.3"},
		{"build info fallback", "dev", "v2.0.0", "v2.0.0"},
		{"devel build info ignored", "dev", "(devel)", "dev"},
		{"empty everything", "", "", "dev"},
	}

	prevVersion := version
	prevReadBuildInfo := readBuildInfo
	t.Cleanup(func() {
		version = prevVersion
		readBuildInfo = prevReadBuildInfo
	})

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			version = c.version
			readBuildInfo = func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{Main: debug.Module{Version: c.buildInfo}}, true
			}
			if got := resolveVersion(); got != c.want {
				t.Fatalf("resolveVersion() = %q, want %q", got, c.want)
			}
		})
	}
}
