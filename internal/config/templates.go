package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "eppd":
		return eppdTemplate, nil
	case "eppctl":
		return eppctlTemplate, nil
	case "accounts":
		return accountsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const eppdTemplate = `addr = ":700"
server_id = "eppkit registry"
accounts_file = "accounts.toml"
admin_addr = "127.0.0.1:7080"
admin_token = ""
cors_origins = ["http://localhost:3000"]
read_timeout = "10m"
write_timeout = "15s"
max_frame_bytes = 4194304
poll_ack_policy = "match-head"
poll_store = "memory"
redis_addr = "127.0.0.1:6379"
redis_prefix = "eppkit:pollq:"
security_mode = "development"
tls_enabled = false
tls_mutual = false
tls_cert_file = ""
tls_key_file = ""
tls_ca_file = ""
`

const eppctlTemplate = `addr = "localhost:700"
client_id = "ClientX"
password = "foo-BAR2"
trid_prefix = "EPPCTL"
read_timeout = "30s"
connect_attempts = 3
security_mode = "development"
tls_enabled = false
tls_mutual = false
tls_server_name = ""
tls_cert_file = ""
tls_key_file = ""
tls_ca_file = ""
`

const accountsTemplate = `[[accounts]]
client_id = "ClientX"
password = "foo-BAR2"
name = "Example Registrar"

[[accounts]]
client_id = "ClientY"
password = "bar-FOO2"
name = "Other Registrar"
`

// Validate checks the file at path against kind. Accounts files are fully
// validated; daemon and client files are checked for keys their template
// does not carry.
func Validate(path, kind string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "accounts" {
		_, err := LoadAccounts(path)
		return err
	}
	template, err := Template(kind)
	if err != nil {
		return err
	}
	var known map[string]any
	if err := toml.Unmarshal([]byte(template), &known); err != nil {
		return fmt.Errorf("%s template parse failed: %w", kind, err)
	}
	var got map[string]any
	if err := loadToml(path, &got); err != nil {
		return err
	}
	for key := range got {
		if _, ok := known[key]; !ok && !optionalKeys[kind][key] {
			return fmt.Errorf("%s config %s: unknown key %q", kind, path, key)
		}
	}
	return nil
}

// optionalKeys are accepted but left out of the generated templates.
var optionalKeys = map[string]map[string]bool{
	"eppd": {"roid_suffix": true, "max_login_failures": true},
}
