// Package config loads the service configuration from a YAML file with
// environment-variable overrides. Flags parsed in main win over both.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		// Backend selects the transcript store: "pebble" or "memory".
		Backend string `yaml:"backend"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"storage"`

	Channel struct {
		// ID of the channel this deployment fronts, stamped on inbound
		// activities that omit one.
		ID string `yaml:"id"`
		// Transport selects the terminal transport: "loopback" for local
		// runs, "http" to deliver to the conversation's service URL.
		Transport string `yaml:"transport"`
		// CallbackTimeout bounds outbound HTTP calls to the connector.
		CallbackTimeout time.Duration `yaml:"callback_timeout"`
	} `yaml:"channel"`

	Events struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`

	Retention struct {
		Enabled bool          `yaml:"enabled"`
		Cron    string        `yaml:"cron"`
		Period  time.Duration `yaml:"period"`
	} `yaml:"retention"`

	Security struct {
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		APIKeys struct {
			Ingest []string `yaml:"ingest"`
			Reader []string `yaml:"reader"`
			Admin  []string `yaml:"admin"`
		} `yaml:"api_keys"`
	} `yaml:"security"`

	Validation struct {
		MaxTextLen  int  `yaml:"max_text_len"`
		RequireFrom bool `yaml:"require_from"`
	} `yaml:"validation"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	host := c.Server.Address
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Load reads the file at path (when non-empty) and applies environment
// overrides on top. Missing file with an empty path yields defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "pebble"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./data"
	}
	if cfg.Channel.ID == "" {
		cfg.Channel.ID = "webchat"
	}
	if cfg.Channel.Transport == "" {
		cfg.Channel.Transport = "loopback"
	}
	if cfg.Channel.CallbackTimeout == 0 {
		cfg.Channel.CallbackTimeout = 15 * time.Second
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = "0 2 * * *"
	}
	if cfg.Validation.MaxTextLen == 0 {
		cfg.Validation.MaxTextLen = 8192
	}
}

// applyEnv overrides file values from BOTPIPE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BOTPIPE_ADDR"); v != "" {
		if host, port, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if v := os.Getenv("BOTPIPE_STORE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("BOTPIPE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BOTPIPE_CHANNEL_ID"); v != "" {
		cfg.Channel.ID = v
	}
	if v := os.Getenv("BOTPIPE_CHANNEL_TRANSPORT"); v != "" {
		cfg.Channel.Transport = v
	}
	if v := os.Getenv("BOTPIPE_EVENTS_URL"); v != "" {
		cfg.Events.Enabled = true
		cfg.Events.URL = v
	}
	if v := os.Getenv("BOTPIPE_EVENTS_EXCHANGE"); v != "" {
		cfg.Events.Exchange = v
	}
	if v := os.Getenv("BOTPIPE_RETENTION_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.Enabled = true
			cfg.Retention.Period = d
		}
	}
	if v := os.Getenv("BOTPIPE_API_KEYS_INGEST"); v != "" {
		cfg.Security.APIKeys.Ingest = splitKeys(v)
	}
	if v := os.Getenv("BOTPIPE_API_KEYS_READER"); v != "" {
		cfg.Security.APIKeys.Reader = splitKeys(v)
	}
	if v := os.Getenv("BOTPIPE_API_KEYS_ADMIN"); v != "" {
		cfg.Security.APIKeys.Admin = splitKeys(v)
	}
	if v := os.Getenv("BOTPIPE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitKeys(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
