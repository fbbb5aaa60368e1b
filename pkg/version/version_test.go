package version

import (
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.Component == "" {
		t.Fatalf("expected non-empty version info")
	}
	if !strings.Contains(info.String(), info.Component) {
		t.Fatalf("expected component in %q", info.String())
	}
}

func TestGetShortCommit(t *testing.T) {
	prev := GitCommit
	t.Cleanup(func() { GitCommit = prev })

	GitCommit = "abcdef123456"
	if GetShortCommit() != "abcdef1" {
		t.Fatalf("expected short commit")
	}
	GitCommit = "abc"
	if GetShortCommit() != "abc" {
		t.Fatalf("expected commit unchanged when short")
	}
}
