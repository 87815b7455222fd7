package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment line
BINANCE_API_KEY=file-key
BINANCE_API_SECRET="quoted-secret"
BINANCE_TESTNET='true'
ALREADY_SET=file-value
MALFORMED LINE
=no-key
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ALREADY_SET", "env-value")
	t.Setenv("BINANCE_API_KEY", "")
	os.Unsetenv("BINANCE_API_KEY")
	t.Setenv("BINANCE_API_SECRET", "")
	os.Unsetenv("BINANCE_API_SECRET")
	t.Setenv("BINANCE_TESTNET", "")
	os.Unsetenv("BINANCE_TESTNET")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("BINANCE_API_KEY"); got != "file-key" {
		t.Fatalf("expected file-key, got %q", got)
	}
	if got := os.Getenv("BINANCE_API_SECRET"); got != "quoted-secret" {
		t.Fatalf("expected quotes stripped, got %q", got)
	}
	if got := os.Getenv("BINANCE_TESTNET"); got != "true" {
		t.Fatalf("expected single quotes stripped, got %q", got)
	}
	if got := os.Getenv("ALREADY_SET"); got != "env-value" {
		t.Fatalf("existing env must win, got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"KEY=value", "KEY", "value", true},
		{"  KEY = value  ", "KEY", "value", true},
		{`KEY="spaced value"`, "KEY", "spaced value", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"no-equals", "", "", false},
		{"=value", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseEnvLine(tc.line)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Fatalf("parse %q: got (%q, %q, %v), want (%q, %q, %v)", tc.line, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}
