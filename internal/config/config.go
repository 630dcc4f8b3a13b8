// Package config loads the tempo daemon configuration from a TOML file
// with environment variable overrides for addresses and secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values can be written as "300s" or "3h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	DatabaseURL string `toml:"database_url"` // TEMPO_DATABASE_URL overrides
	ListenAddr  string `toml:"listen_addr"`  // TEMPO_HTTP_ADDR overrides (default "127.0.0.1:4680")
	NATSURL     string `toml:"nats_url"`     // TEMPO_NATS_URL overrides (optional, empty = no events)

	Capture    CaptureConfig    `toml:"capture"`
	Jira       JiraConfig       `toml:"jira"`
	CRM        CRMConfig        `toml:"crm"`
	Classifier ClassifierConfig `toml:"classifier"`
	Tracking   TrackingConfig   `toml:"tracking"`
	Archive    ArchiveConfig    `toml:"archive"`
}

// CaptureConfig points at the local screen activity capture service.
type CaptureConfig struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

// JiraConfig configures the issue tracker collaborator.
type JiraConfig struct {
	URL      string   `toml:"url"`
	Email    string   `toml:"email"`
	APIToken string   `toml:"api_token"` // TEMPO_JIRA_TOKEN overrides
	Enabled  bool     `toml:"enabled"`
	Timeout  Duration `toml:"timeout"`
	CacheTTL Duration `toml:"cache_ttl"`
}

// CRMConfig configures the optional CRM time entry mirror.
type CRMConfig struct {
	URL          string   `toml:"url"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`      // TEMPO_CRM_PASSWORD overrides
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"` // TEMPO_CRM_SECRET overrides
	Enabled      bool     `toml:"enabled"`
	Timeout      Duration `toml:"timeout"`
}

// ClassifierConfig configures the AI batch classifier.
type ClassifierConfig struct {
	Endpoint            string   `toml:"endpoint"`
	APIKey              string   `toml:"api_key"` // TEMPO_CLASSIFIER_KEY overrides
	Enabled             bool     `toml:"enabled"`
	Timeout             Duration `toml:"timeout"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	BatchSize           int      `toml:"batch_size"`
}

// TrackingConfig holds the collection and export cadence.
type TrackingConfig struct {
	PollInterval      Duration `toml:"poll_interval"`
	ExportInterval    Duration `toml:"export_interval"`
	BillableThreshold Duration `toml:"billable_threshold"`
	ExportOnStop      bool     `toml:"export_on_stop"`
}

// ArchiveConfig configures the optional S3 session report archive.
type ArchiveConfig struct {
	S3Bucket   string `toml:"s3_bucket"` // enables archiving when set
	S3Endpoint string `toml:"s3_endpoint"`
	S3Region   string `toml:"s3_region"`
	S3Prefix   string `toml:"s3_prefix"`
}

// Default returns a config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:4680",
		Capture: CaptureConfig{
			URL:     "http://127.0.0.1:3030",
			Timeout: Duration{10 * time.Second},
		},
		Jira: JiraConfig{
			Timeout:  Duration{15 * time.Second},
			CacheTTL: Duration{2 * time.Hour},
		},
		CRM: CRMConfig{
			Timeout: Duration{15 * time.Second},
		},
		Classifier: ClassifierConfig{
			Timeout:             Duration{30 * time.Second},
			ConfidenceThreshold: 0.75,
			BatchSize:           100,
		},
		Tracking: TrackingConfig{
			PollInterval:      Duration{5 * time.Minute},
			ExportInterval:    Duration{3 * time.Hour},
			BillableThreshold: Duration{10 * time.Minute},
			ExportOnStop:      true,
		},
		Archive: ArchiveConfig{
			S3Region: "us-east-1",
			S3Prefix: "tempo/sessions",
		},
	}
}

// Path returns the config file location: TEMPO_CONFIG if set, otherwise
// ~/.config/tempo/config.toml.
func Path() (string, error) {
	if p := os.Getenv("TEMPO_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tempo", "config.toml"), nil
}

// Load reads the config file (if present), applies environment overrides,
// and validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(c)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnv(c *Config) {
	c.DatabaseURL = envOrDefault("TEMPO_DATABASE_URL", c.DatabaseURL)
	c.ListenAddr = envOrDefault("TEMPO_HTTP_ADDR", c.ListenAddr)
	c.NATSURL = envOrDefault("TEMPO_NATS_URL", c.NATSURL)
	c.Jira.APIToken = envOrDefault("TEMPO_JIRA_TOKEN", c.Jira.APIToken)
	c.CRM.Password = envOrDefault("TEMPO_CRM_PASSWORD", c.CRM.Password)
	c.CRM.ClientSecret = envOrDefault("TEMPO_CRM_SECRET", c.CRM.ClientSecret)
	c.Classifier.APIKey = envOrDefault("TEMPO_CLASSIFIER_KEY", c.Classifier.APIKey)
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (or set TEMPO_DATABASE_URL)")
	}
	if c.Jira.Enabled && c.Jira.URL == "" {
		return fmt.Errorf("jira.url is required when jira is enabled")
	}
	if c.CRM.Enabled && c.CRM.URL == "" {
		return fmt.Errorf("crm.url is required when crm is enabled")
	}
	if c.Classifier.Enabled && c.Classifier.Endpoint == "" {
		return fmt.Errorf("classifier.endpoint is required when the classifier is enabled")
	}
	if t := c.Classifier.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("classifier.confidence_threshold must be within [0, 1], got %v", t)
	}
	return nil
}

// WriteDefault writes a commented starter config to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o600)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

const defaultTOML = `# tempo daemon configuration

# PostgreSQL connection string. TEMPO_DATABASE_URL overrides.
database_url = ""

# Loopback control address for the daemon and CLI.
listen_addr = "127.0.0.1:4680"

# Optional NATS URL for lifecycle events. Empty disables publishing.
nats_url = ""

[capture]
url = "http://127.0.0.1:3030"
timeout = "10s"

[jira]
url = "https://your-domain.atlassian.net"
email = "you@example.com"
api_token = ""          # or TEMPO_JIRA_TOKEN
enabled = true
timeout = "15s"
cache_ttl = "2h"

[crm]
url = ""
username = ""
password = ""           # or TEMPO_CRM_PASSWORD
client_id = ""
client_secret = ""      # or TEMPO_CRM_SECRET
enabled = false
timeout = "15s"

[classifier]
endpoint = ""
api_key = ""            # or TEMPO_CLASSIFIER_KEY
enabled = false
timeout = "30s"
confidence_threshold = 0.75
batch_size = 100

[tracking]
poll_interval = "5m"
export_interval = "3h"
billable_threshold = "10m"
export_on_stop = true

[archive]
s3_bucket = ""          # enables S3 archiving when set
s3_endpoint = ""
s3_region = "us-east-1"
s3_prefix = "tempo/sessions"
`
