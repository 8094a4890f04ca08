package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback time.Duration
		want     time.Duration
	}{
		{name: "unset", value: "", fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "go duration", value: "1m30s", fallback: time.Second, want: 90 * time.Second},
		{name: "bare seconds", value: "12", fallback: time.Second, want: 12 * time.Second},
		{name: "garbage", value: "soon", fallback: 3 * time.Second, want: 3 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.value)
			if got := getEnvDuration("TEST_DURATION", tc.fallback); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	if getEnvBool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("TEST_BOOL", "nope")
	if !getEnvBool("TEST_BOOL", true) {
		t.Fatal("expected fallback true")
	}
}

func TestParseOrigins(t *testing.T) {
	if got := parseOrigins(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	got := parseOrigins(" http://a.test , ,http://b.test")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("SUBMIT_WAIT_TIMEOUT", "")
	cfg := Load()
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("store driver = %q", cfg.StoreDriver)
	}
	if cfg.SubmitWaitTimeout != 10*time.Second {
		t.Fatalf("submit wait = %v", cfg.SubmitWaitTimeout)
	}
}
