package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/eppkit/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAccountsTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "accounts.toml")
	if err := WriteTemplate(path, "accounts", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "accounts", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := LoadAccounts(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts[0].ClientID != "ClientX" {
		t.Fatalf("accounts: %+v", cfg.Accounts)
	}
	accts := Accounts(cfg)
	if _, err := accts.Authenticate("ClientX", "foo-BAR2"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestLoadAccountsDefaultsName(t *testing.T) {
	path := writeFile(t, "[[accounts]]\nclient_id = \" ClientZ \"\npassword = \"secret-1\"\n")
	cfg, err := LoadAccounts(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Accounts[0].ClientID != "ClientZ" || cfg.Accounts[0].Name != "ClientZ" {
		t.Fatalf("entry: %+v", cfg.Accounts[0])
	}
}

func TestValidateAccounts(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"short id":  "[[accounts]]\nclient_id = \"ab\"\npassword = \"secret-1\"\n",
		"short pw":  "[[accounts]]\nclient_id = \"ClientX\"\npassword = \"abc\"\n",
		"duplicate": "[[accounts]]\nclient_id = \"ClientX\"\npassword = \"secret-1\"\n[[accounts]]\nclient_id = \"ClientX\"\npassword = \"secret-2\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccounts([]byte(body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadAccountsParseError(t *testing.T) {
	path := writeFile(t, "[[accounts]\n")
	_, err := LoadAccounts(path)
	if err == nil || !strings.Contains(err.Error(), "config parse failed") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestTemplateKinds(t *testing.T) {
	for _, kind := range []string{"eppd", "eppctl", "accounts"} {
		if _, err := Template(kind); err != nil {
			t.Fatalf("template %s: %v", kind, err)
		}
	}
	if _, err := Template("registrar"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestValidateKinds(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range []string{"eppd", "eppctl", "accounts"} {
		path := filepath.Join(dir, kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s: %v", kind, err)
		}
		if err := Validate(path, kind); err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
	}

	path := writeFile(t, "addr = \":700\"\nroid_suffix = \"TEST\"\n")
	if err := Validate(path, "eppd"); err != nil {
		t.Fatalf("optional key rejected: %v", err)
	}
	if err := Validate(path, "eppctl"); err == nil {
		t.Fatalf("expected unknown key error for eppctl")
	}
	if err := Validate(path, "registrar"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
