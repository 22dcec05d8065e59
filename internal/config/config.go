// ABOUTME: Daemon configuration loaded from SWARM_* environment variables.
// ABOUTME: Enforces a remote-access-requires-auth-token constraint, the same non-loopback-bind-needs-a-safeguard caution other gateways in the pack apply.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrRemoteWithoutToken = errors.New(
		"SWARM_ALLOW_REMOTE is true but SWARM_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"SWARM_BIND is a non-loopback address but SWARM_ALLOW_REMOTE is not true; set SWARM_ALLOW_REMOTE=true and SWARM_AUTH_TOKEN to allow remote access",
	)
)

// Config holds daemon configuration loaded from environment variables.
type Config struct {
	DataDir         string // SWARM_DATA_DIR, default: ~/.swarmd
	Bind            string // SWARM_BIND, default: 127.0.0.1:8770
	AllowRemote     bool   // SWARM_ALLOW_REMOTE, default: false
	AuthToken       string // SWARM_AUTH_TOKEN, optional
	DefaultProvider string // SWARM_DEFAULT_PROVIDER, default: anthropic
	DefaultModel    string // SWARM_DEFAULT_MODEL, optional
	ChildCommand    string // CODEX_BIN, default: codex
	MemoryFile      string // SWARM_MEMORY_FILE, optional

	PrimaryManagerID string        // SWARM_PRIMARY_MANAGER_ID, default: primary
	AllowedRoots     []string      // SWARM_ALLOWED_ROOTS, colon-separated, default: $HOME
	CronPollInterval time.Duration // SWARM_CRON_POLL_INTERVAL, default: 30s
}

// FromEnv loads configuration from SWARM_*/CODEX_* environment variables with
// sensible defaults, applying the same remote-bind security constraints the
// teacher's server config enforces.
func FromEnv() (*Config, error) {
	dataDir := envOrDefault("SWARM_DATA_DIR", "")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		dataDir = filepath.Join(homeDir, ".swarmd")
	}

	bind := envOrDefault("SWARM_BIND", "127.0.0.1:8770")

	allowRemote := false
	if v := os.Getenv("SWARM_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	authToken := os.Getenv("SWARM_AUTH_TOKEN")
	defaultProvider := envOrDefault("SWARM_DEFAULT_PROVIDER", "anthropic")
	defaultModel := os.Getenv("SWARM_DEFAULT_MODEL")
	childCommand := envOrDefault("CODEX_BIN", "codex")
	memoryFile := os.Getenv("SWARM_MEMORY_FILE")
	primaryManagerID := envOrDefault("SWARM_PRIMARY_MANAGER_ID", "primary")

	var allowedRoots []string
	if v := os.Getenv("SWARM_ALLOWED_ROOTS"); v != "" {
		allowedRoots = strings.Split(v, ":")
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		allowedRoots = []string{homeDir}
	}

	cronPollInterval := 30 * time.Second
	if v := os.Getenv("SWARM_CRON_POLL_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cronPollInterval = time.Duration(secs) * time.Second
		}
	}

	if allowRemote && authToken == "" {
		return nil, ErrRemoteWithoutToken
	}

	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
				// Safe: 127.x.x.x or ::1
			case ip != nil:
				return nil, fmt.Errorf("%w: SWARM_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
				// Safe: conventional loopback hostname
			default:
				return nil, fmt.Errorf("%w: SWARM_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return &Config{
		DataDir:          dataDir,
		Bind:             bind,
		AllowRemote:      allowRemote,
		AuthToken:        authToken,
		DefaultProvider:  defaultProvider,
		DefaultModel:     defaultModel,
		ChildCommand:     childCommand,
		MemoryFile:       memoryFile,
		PrimaryManagerID: primaryManagerID,
		AllowedRoots:     allowedRoots,
		CronPollInterval: cronPollInterval,
	}, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
