package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sungwon/mailrelay/internal/auth"
)

// runCLI executes mailctl with an empty config directory and no dotenv file.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", dir, "--env-file", filepath.Join(dir, ".env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestAPIKeyGenerate(t *testing.T) {
	out, err := runCLI(t, "apikey", "generate", "ops")
	if err != nil {
		t.Fatalf("apikey generate: %v", err)
	}

	key := regexp.MustCompile(`API key \(shown once\): (\S+)`).FindStringSubmatch(out)
	hash := regexp.MustCompile(`hash: "(\S+)"`).FindStringSubmatch(out)
	if key == nil || hash == nil {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "name: ops") {
		t.Errorf("output missing key name:\n%s", out)
	}
	if err := auth.VerifyKey(hash[1], key[1]); err != nil {
		t.Errorf("printed hash does not verify printed key: %v", err)
	}
}

func TestProvidersTemplates(t *testing.T) {
	out, err := runCLI(t, "providers", "templates")
	if err != nil {
		t.Fatalf("providers templates: %v", err)
	}
	for _, want := range []string{"TYPE", "brevo", "smtp-gmail", "ses"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnvFileLoaded(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("MAILRELAY_TEST_ONLY_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MAILRELAY_TEST_ONLY_VALUE") })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", dir, "--env-file", envFile, "providers", "templates"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := os.Getenv("MAILRELAY_TEST_ONLY_VALUE"); got != "from-dotenv" {
		t.Errorf("dotenv value = %q, want from-dotenv", got)
	}
}

func TestSendRequiresBody(t *testing.T) {
	_, err := runCLI(t, "send", "--to", "a@example.com", "--subject", "Hi")
	if err == nil || !strings.Contains(err.Error(), "--html") {
		t.Fatalf("expected missing body error, got %v", err)
	}
}

func TestParseCredentials(t *testing.T) {
	m, err := parseCredentials([]string{"api_key=abc=def", "domain=mg.example.com"})
	if err != nil {
		t.Fatalf("parseCredentials: %v", err)
	}
	if m["api_key"] != "abc=def" || m["domain"] != "mg.example.com" {
		t.Errorf("credentials = %v", m)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseCredentials([]string{bad}); err == nil {
			t.Errorf("parseCredentials(%q) expected error", bad)
		}
	}
}
