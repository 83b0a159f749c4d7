// Package config loads treeforge settings from YAML or TOML files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
)

// Environment variables that override file settings.
const (
	EnvStoreURL   = "TREEFORGE_STORE_URL"
	EnvStoreToken = "TREEFORGE_STORE_TOKEN"
	EnvAuthDB     = "TREEFORGE_AUTH_DB"
	EnvLogLevel   = "TREEFORGE_LOG_LEVEL"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the complete treeforge configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" toml:"store"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Versioning VersioningConfig `yaml:"versioning" toml:"versioning"`
	Branches   BranchesConfig   `yaml:"branches" toml:"branches"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// StoreConfig describes how to reach the repository.
type StoreConfig struct {
	// URL is the repository resource, e.g. https://api.github.com/repos/owner/repo.
	URL string `yaml:"url" toml:"url"`
	// Token is sent as a bearer credential. ${VAR} references are expanded.
	Token     string        `yaml:"token" toml:"token"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit   float64 `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst" toml:"rate_burst"`
	ReadRetries int     `yaml:"read_retries" toml:"read_retries"`
	Tracing     bool    `yaml:"tracing" toml:"tracing"`
}

// AuthConfig locates the user database.
type AuthConfig struct {
	Database        string        `yaml:"database" toml:"database"`
	ActivityTimeout time.Duration `yaml:"activity_timeout" toml:"activity_timeout"`
}

// VersioningConfig controls version tags.
type VersioningConfig struct {
	DefaultBump string        `yaml:"default_bump" toml:"default_bump"`
	TagAttempts int           `yaml:"tag_attempts" toml:"tag_attempts"`
	TagBackoff  time.Duration `yaml:"tag_backoff" toml:"tag_backoff"`
}

// BranchesConfig holds branch policies.
type BranchesConfig struct {
	Default        string   `yaml:"default" toml:"default"`
	Protected      []string `yaml:"protected" toml:"protected"`
	ProposalPolicy string   `yaml:"proposal_policy" toml:"proposal_policy"`
	Placeholder    string   `yaml:"placeholder" toml:"placeholder"`
	AuthorDomain   string   `yaml:"author_domain" toml:"author_domain"`
}

// LogConfig controls the console logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults returns the configuration used for unset values.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			UserAgent:   "treeforge",
			Timeout:     30 * time.Second,
			RateBurst:   1,
			ReadRetries: 3,
		},
		Auth: AuthConfig{
			Database:        "treeforge.db",
			ActivityTimeout: 5 * time.Second,
		},
		Versioning: VersioningConfig{
			DefaultBump: string(treeforge.BumpPatch),
			TagAttempts: 3,
			TagBackoff:  50 * time.Millisecond,
		},
		Branches: BranchesConfig{
			Default:        "main",
			ProposalPolicy: string(operations.ProposalRequireBranchCreate),
			Placeholder:    treeforge.DefaultPlaceholder,
			AuthorDomain:   "treeforge.local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides and validates
// the result. An empty path loads the defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.Store.Token = os.ExpandEnv(cfg.Store.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	default:
		return fmt.Errorf("%w: %q (want .yaml, .yml or .toml)", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStoreURL); ok {
		c.Store.URL = v
	}
	if v, ok := lookup(EnvStoreToken); ok {
		c.Store.Token = v
	}
	if v, ok := lookup(EnvAuthDB); ok {
		c.Auth.Database = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Store.URL != "" {
		if u, err := url.Parse(c.Store.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("store.url %q must be an http(s) URL", c.Store.URL))
		}
	}
	if c.Store.Timeout < 0 {
		result = multierror.Append(result, errors.New("store.timeout cannot be negative"))
	}
	if c.Store.RateLimit < 0 {
		result = multierror.Append(result, errors.New("store.rate_limit cannot be negative"))
	}
	if c.Store.ReadRetries < 1 {
		result = multierror.Append(result, errors.New("store.read_retries must be at least 1"))
	}

	if c.Auth.Database == "" {
		result = multierror.Append(result, errors.New("auth.database is required"))
	}

	if _, err := treeforge.ParseBump(c.Versioning.DefaultBump); err != nil {
		result = multierror.Append(result, fmt.Errorf("versioning.default_bump: %w", err))
	}
	if c.Versioning.TagAttempts < 1 {
		result = multierror.Append(result, errors.New("versioning.tag_attempts must be at least 1"))
	}

	if _, err := protocol.BranchRefName(c.Branches.Default); err != nil || c.Branches.Default == "" {
		result = multierror.Append(result, fmt.Errorf("branches.default %q is not a valid branch name", c.Branches.Default))
	}
	if _, err := operations.ParseProposalPolicy(c.Branches.ProposalPolicy); err != nil {
		result = multierror.Append(result, fmt.Errorf("branches.proposal_policy: %w", err))
	}
	if err := treeforge.ValidateName(c.Branches.Placeholder); err != nil {
		result = multierror.Append(result, fmt.Errorf("branches.placeholder: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// ErrNoStore is returned by RequireStore when no repository is configured.
var ErrNoStore = errors.New("store.url is required")

// RequireStore checks that a repository is configured. User management works without one.
func (c *Config) RequireStore() error {
	if c.Store.URL == "" {
		return fmt.Errorf("%w: set it in the config file or %s", ErrNoStore, EnvStoreURL)
	}
	return nil
}

// ClientOptions translates the store settings into client options.
func (s StoreConfig) ClientOptions() []client.Option {
	options := []client.Option{
		client.WithUserAgent(s.UserAgent),
		client.WithReadRetries(s.ReadRetries),
	}
	if s.Token != "" {
		options = append(options, client.WithTokenAuth("Bearer "+s.Token))
	}
	if s.Timeout > 0 {
		options = append(options, client.WithHTTPClient(&http.Client{Timeout: s.Timeout}))
	}
	if s.RateLimit > 0 {
		options = append(options, client.WithRateLimit(s.RateLimit, s.RateBurst))
	}
	if s.Tracing {
		options = append(options, client.WithTracing())
	}
	return options
}

// ServiceOptions translates the branch and versioning settings into service options.
// The config must have passed Validate.
func (c *Config) ServiceOptions() []operations.Option {
	bump, _ := treeforge.ParseBump(c.Versioning.DefaultBump)
	policy, _ := operations.ParseProposalPolicy(c.Branches.ProposalPolicy)

	return []operations.Option{
		operations.WithDefaultBranch(c.Branches.Default),
		operations.WithProtectedBranches(c.Branches.Protected...),
		operations.WithProposalPolicy(policy),
		operations.WithPlaceholder(c.Branches.Placeholder),
		operations.WithDefaultBump(bump),
		operations.WithAuthorDomain(c.Branches.AuthorDomain),
		operations.WithTagOptions(
			treeforge.WithTagAttempts(c.Versioning.TagAttempts),
			treeforge.WithTagBackoff(c.Versioning.TagBackoff),
		),
	}
}
