package main

import (
	"runtime/debug"
	"strings"
)

var (
	version       = "dev"
	readBuildInfo = debug.ReadBuildInfo
)

func resolveVersion() string {
	v := strings.TrimSpace(version)
	if v != "" && v != "dev" {
		return v
	}

	if bi, ok := readBuildInfo(); ok {
		mv := strings.TrimSpace(bi.Main.Version)
		if mv != "" && mv != "(devel)" {
			return mv
		}
	}

	return "dev"
}
