// Package config loads and validates the gateway's endpoint configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// Mode selects both the wire codec and the request handler for an endpoint.
type Mode string

const (
	ModeTCPLookup Mode = "tcp-lookup"
	ModeSocketmap Mode = "socketmap-lookup"
	ModePolicy    Mode = "policy"
)

func (m Mode) valid() bool {
	switch m {
	case ModeTCPLookup, ModeSocketmap, ModePolicy:
		return true
	default:
		return false
	}
}

// Endpoint is one REST-backed listener. Immutable after Load.
type Endpoint struct {
	Name           string `json:"name"`
	Mode           Mode   `json:"mode"`
	Target         string `json:"target"`
	BindAddress    string `json:"bind-address"`
	BindPort       int    `json:"bind-port"`
	AuthToken      string `json:"auth-token"`
	RequestTimeout int    `json:"request-timeout"` // milliseconds
}

func (e *Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.BindAddress, e.BindPort)
}

func (e *Endpoint) validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint is missing a name")
	}
	if !e.Mode.valid() {
		return fmt.Errorf("endpoint %q: unknown mode %q", e.Name, e.Mode)
	}
	if e.BindPort < 1 || e.BindPort > 65535 {
		return fmt.Errorf("endpoint %q: bind-port %d out of range [1, 65535]", e.Name, e.BindPort)
	}
	if e.BindAddress == "" {
		return fmt.Errorf("endpoint %q: bind-address is required", e.Name)
	}
	if e.AuthToken == "" {
		return fmt.Errorf("endpoint %q: auth-token is required", e.Name)
	}
	if e.RequestTimeout <= 0 {
		return fmt.Errorf("endpoint %q: request-timeout must be > 0", e.Name)
	}
	u, err := url.Parse(e.Target)
	if err != nil {
		return fmt.Errorf("endpoint %q: invalid target %q: %v", e.Name, e.Target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q: target %q must be http or https", e.Name, e.Target)
	}
	return nil
}

// Config is the top-level, immutable-after-load configuration.
type Config struct {
	UserAgent string      `json:"user-agent"`
	Endpoints []*Endpoint `json:"endpoints"`
}

const defaultUserAgent = "Postfix REST API Connector"

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %v", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %v", path, err)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("config must declare at least one endpoint")
	}

	seen := make(map[string]string, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if err := ep.validate(); err != nil {
			return nil, err
		}
		addr := ep.Addr()
		if other, dup := seen[addr]; dup {
			return nil, fmt.Errorf("endpoint %q: bind address %s already used by endpoint %q", ep.Name, addr, other)
		}
		seen[addr] = ep.Name
	}

	return &cfg, nil
}
