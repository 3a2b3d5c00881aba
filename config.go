package imapc

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tacheron/imapc/credentials"
	"github.com/tacheron/imapc/imaperr"
	"github.com/tacheron/imapc/protocol"
)

// Config describes everything needed to reach and authenticate against one IMAP server, in the
// lineage's plain JSON-tag'd struct style (cf. toolbox.IMAPS).
type Config struct {
	Host               string `json:"Host"`
	Port               string `json:"Port"` // name ("imap", "imaps", "imap2", "imap3") or numeric string
	MailboxName        string `json:"MailboxName"`
	InsecureSkipVerify bool   `json:"InsecureSkipVerify"`
	AuthUsername       string `json:"AuthUsername"`
	AuthPassword       string `json:"AuthPassword"`

	TLSMode protocol.TLSMode `json:"-"` // not settable via JSON: Disabled/Automatic/Required/ImplicitIMAPS

	ProxyURL string `json:"ProxyURL"` // optional SOCKS5 proxy, e.g. "127.0.0.1:1080"

	// AutoDiscoverDomain, when non-empty, triggers discovery.Lookup(domain) for a host:port
	// candidate before Host/Port are consulted as a fallback.
	AutoDiscoverDomain string `json:"AutoDiscoverDomain"`

	// HealthCheckAddr, when non-empty, starts a grpc_health_v1 server listening on this address
	// for the lifetime of the Connection.
	HealthCheckAddr string `json:"HealthCheckAddr"`

	// Credentials, when set, overrides AuthUsername/AuthPassword as the source of login
	// credentials. Connect wraps AuthUsername/AuthPassword in a credentials.Static if this is nil.
	Credentials credentials.Provider `json:"-"`
}

// resolvedPort maps a protocol name (or a numeric string) to a TCP port, per §6's port table.
// "imaps" additionally implies implicit TLS, signalled via the second return value.
func resolvedPort(s string) (port int, implicitTLS bool, err *imaperr.Error) {
	switch s {
	case "imap", "imap2":
		return 143, false, nil
	case "imap3":
		return 220, false, nil
	case "imaps":
		return 993, true, nil
	}
	n, convErr := strconv.Atoi(s)
	if convErr != nil {
		return 0, false, imaperr.New(imaperr.UnknownProtocol, "resolvedPort", "unrecognised port or protocol name: "+s, convErr)
	}
	return n, n == 993, nil
}

// LoadConfigJSON reads a Config from a JSON file, the lineage's own and only configuration
// format.
func LoadConfigJSON(path string) (*Config, *imaperr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "LoadConfigJSON", "failed to read "+path, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "LoadConfigJSON", "failed to parse "+path, err)
	}
	return cfg, nil
}

// LoadConfigTOML reads a Config from a TOML file, for operators who keep their configuration
// alongside other TOML-based tooling instead of JSON.
func LoadConfigTOML(path string) (*Config, *imaperr.Error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "LoadConfigTOML", "failed to parse "+path, err)
	}
	return cfg, nil
}

// LoadDotEnv populates a Config from a ".env"-style file (IMAPC_HOST, IMAPC_PORT,
// IMAPC_MAILBOX, IMAPC_USERNAME, IMAPC_PASSWORD), for operators who keep credentials outside
// source control entirely.
func LoadDotEnv(path string) (*Config, *imaperr.Error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, imaperr.New(imaperr.CannotConnect, "LoadDotEnv", "failed to read "+path, err)
	}
	cfg := &Config{
		Host:         vars["IMAPC_HOST"],
		Port:         vars["IMAPC_PORT"],
		MailboxName:  vars["IMAPC_MAILBOX"],
		AuthUsername: vars["IMAPC_USERNAME"],
		AuthPassword: vars["IMAPC_PASSWORD"],
	}
	return cfg, nil
}
