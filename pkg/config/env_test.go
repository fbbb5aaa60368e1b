package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	if got := GetEnv("FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("FOO", "baz")
	if got := GetEnv("FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("PAGE_LIMIT", "")
	if got := GetEnvInt("PAGE_LIMIT", 20); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	t.Setenv("PAGE_LIMIT", "50")
	if got := GetEnvInt("PAGE_LIMIT", 20); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	t.Setenv("PAGE_LIMIT", "lots")
	if got := GetEnvInt("PAGE_LIMIT", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	if got := GetEnvBool("FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	t.Setenv("FLAG", "false")
	if got := GetEnvBool("FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TYPING_DELAY", "")
	if got := GetEnvDuration("TYPING_DELAY", time.Second); got != time.Second {
		t.Fatalf("expected default, got %v", got)
	}
	t.Setenv("TYPING_DELAY", "1500ms")
	if got := GetEnvDuration("TYPING_DELAY", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", got)
	}
	t.Setenv("TYPING_DELAY", "soon")
	if got := GetEnvDuration("TYPING_DELAY", time.Second); got != time.Second {
		t.Fatalf("expected default on parse error, got %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("REDIS_ADDRS", " a:1, ,b:2 ")
	got := GetEnvList("REDIS_ADDRS", nil)
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("unexpected list %v", got)
	}
	t.Setenv("REDIS_ADDRS", " , ")
	if got := GetEnvList("REDIS_ADDRS", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	LoadEnv(logrus.New())
	LoadEnv(nil)
}
