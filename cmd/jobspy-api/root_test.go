package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version returned an error: %v", err)
	}
	if !strings.HasPrefix(out, "jobspy-api version ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRefreshCmd_Disabled(t *testing.T) {
	t.Setenv("USE_PROXIES", "false")
	missing := filepath.Join(t.TempDir(), "missing.ini")

	_, err := execute(t, "refresh", "--config", missing)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("expected a disabled error, got %v", err)
	}
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	t.Setenv("MAX_PROXY_WORKERS", "0")
	missing := filepath.Join(t.TempDir(), "missing.ini")

	if _, err := execute(t, "serve", "--config", missing); err == nil {
		t.Error("expected an invalid configuration to be rejected")
	}
}

func TestRootCmd_RejectsExtraArgs(t *testing.T) {
	if _, err := execute(t, "refresh", "extra"); err == nil {
		t.Error("expected extra arguments to be rejected")
	}
}
