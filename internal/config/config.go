// Package config loads the YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	EnvPath     = "WARDEN_CONFIG"
	DefaultPath = "warden.yaml"
)

type Config struct {
	Region        string        `yaml:"region"`
	Log           Log           `yaml:"log"`
	Store         Store         `yaml:"store"`
	Notifications Notifications `yaml:"notifications"`
	Evaluation    Evaluation    `yaml:"evaluation"`
	Firewall      Firewall      `yaml:"firewall"`
	Server        Server        `yaml:"server"`
	Schedules     []Schedule    `yaml:"schedules"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Store struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	Tables      Tables `yaml:"tables"`
	BundleIndex string `yaml:"bundle_index"`
}

type Tables struct {
	Objects string `yaml:"objects"`
	Rules   string `yaml:"rules"`
	Bundles string `yaml:"bundles"`
}

type Notifications struct {
	TopicArn  string `yaml:"topic_arn"`
	QueueSize int    `yaml:"queue_size"`
}

type Evaluation struct {
	ChunkSize int           `yaml:"chunk_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Firewall struct {
	// RoleArnPattern is the role assumed in the account that owns a rule
	// group, with {account} replaced by the account id. Empty means every
	// rule group is updated with the default credentials.
	RoleArnPattern string `yaml:"role_arn_pattern"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

type Schedule struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
	Bundles  []string      `yaml:"bundles"`
}

func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "text"},
		Store: Store{
			Driver: "sqlite",
			Path:   "warden.db",
			Tables: Tables{
				Objects: "FlowObjects",
				Rules:   "FlowRules",
				Bundles: "FlowRuleBundles",
			},
			BundleIndex: "ruleBundleId-index",
		},
		Notifications: Notifications{QueueSize: 256},
		Evaluation: Evaluation{
			ChunkSize: 50,
			CacheTTL:  60 * time.Second,
			Timeout:   5 * time.Minute,
		},
		Server: Server{Listen: ":8080"},
	}
}

// Path returns explicit if set, then $WARDEN_CONFIG, then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads path over the defaults. A missing file at the default path is
// not an error; a missing file that was asked for explicitly is.
func Load(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var scheduleName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func (c *Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	case "dynamodb":
		t := c.Store.Tables
		if t.Objects == "" || t.Rules == "" || t.Bundles == "" || c.Store.BundleIndex == "" {
			errs = append(errs, fmt.Errorf("store.tables and store.bundle_index are required for the dynamodb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or dynamodb, got %q", c.Store.Driver))
	}

	if c.Notifications.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("notifications.queue_size must not be negative"))
	}
	if c.Evaluation.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("evaluation.chunk_size must be positive"))
	}
	if c.Evaluation.CacheTTL < 0 || c.Evaluation.Timeout < 0 {
		errs = append(errs, fmt.Errorf("evaluation durations must not be negative"))
	}
	if p := c.Firewall.RoleArnPattern; p != "" && !strings.Contains(p, "{account}") {
		errs = append(errs, fmt.Errorf("firewall.role_arn_pattern must contain {account}"))
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		switch {
		case !scheduleName.MatchString(s.Name):
			errs = append(errs, fmt.Errorf("schedules[%d]: invalid name %q", i, s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Interval < time.Second {
			errs = append(errs, fmt.Errorf("schedules[%d]: interval must be at least 1s", i))
		}
		if len(s.Bundles) == 0 {
			errs = append(errs, fmt.Errorf("schedules[%d]: at least one bundle is required", i))
		}
	}
	return errors.Join(errs...)
}
