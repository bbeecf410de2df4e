package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// Config holds the application configuration
type Config struct {
	// Azure DevOps
	Token              string
	AuthType           string // "pat" or "bearer"
	BaseURL            string
	ReleaseURL         string
	ProfileURL         string
	PageSize           int
	ThrottlingInterval time.Duration
	HTTPTimeout        time.Duration

	// Integration
	TenantID        string
	IntegrationID   string
	IntegrationFile string

	// Scan
	OnboardingDays  int
	MaxScanAttempts int
	CachePath       string
	CacheTTL        time.Duration

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	LogLevel string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	c := &Config{
		Token:           getEnv("AZURE_DEVOPS_TOKEN", ""),
		AuthType:        getEnv("AZURE_DEVOPS_AUTH", "pat"),
		BaseURL:         getEnv("AZURE_DEVOPS_URL", ""),
		ReleaseURL:      getEnv("AZURE_DEVOPS_RELEASE_URL", ""),
		ProfileURL:      getEnv("AZURE_DEVOPS_PROFILE_URL", ""),
		TenantID:        getEnv("TENANT_ID", "default"),
		IntegrationID:   getEnv("INTEGRATION_ID", "default"),
		IntegrationFile: getEnv("INTEGRATION_FILE", ""),
		CachePath:       getEnv("CACHE_PATH", ""),
		StorageType:     getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:      getEnv("SQLITE_PATH", "./ingest.db"),
		PostgresURL:     getEnv("POSTGRES_URL", ""),
		APIPort:         getEnv("API_PORT", "8080"),
		APIHost:         getEnv("API_HOST", "localhost"),
		APIEndpoint:     getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if c.PageSize, err = getEnvInt("PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if c.OnboardingDays, err = getEnvInt("ONBOARDING_DAYS", 90); err != nil {
		return nil, err
	}
	if c.MaxScanAttempts, err = getEnvInt("MAX_SCAN_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	ms, err := getEnvInt("THROTTLING_INTERVAL_MS", 0)
	if err != nil {
		return nil, err
	}
	c.ThrottlingInterval = time.Duration(ms) * time.Millisecond
	secs, err := getEnvInt("HTTP_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	c.HTTPTimeout = time.Duration(secs) * time.Second
	hours, err := getEnvInt("CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	c.CacheTTL = time.Duration(hours) * time.Hour

	return c, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// Key returns the integration scope of the configuration
func (c *Config) Key() domain.IntegrationKey {
	return domain.IntegrationKey{TenantID: c.TenantID, IntegrationID: c.IntegrationID}
}

// ValidateStorage validates the storage settings only
func (c *Config) ValidateStorage() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// Validate validates the configuration needed to scan
func (c *Config) Validate() error {
	if c.Token == "" {
		return &ConfigError{Field: "AZURE_DEVOPS_TOKEN", Message: "Azure DevOps token is required"}
	}
	if c.AuthType != "pat" && c.AuthType != "bearer" {
		return &ConfigError{Field: "AZURE_DEVOPS_AUTH", Message: "must be 'pat' or 'bearer'"}
	}
	if c.PageSize <= 0 {
		return &ConfigError{Field: "PAGE_SIZE", Message: "must be positive"}
	}
	if c.OnboardingDays <= 0 {
		return &ConfigError{Field: "ONBOARDING_DAYS", Message: "must be positive"}
	}
	if c.MaxScanAttempts <= 0 {
		return &ConfigError{Field: "MAX_SCAN_ATTEMPTS", Message: "must be positive"}
	}
	if c.TenantID == "" || c.IntegrationID == "" {
		return &ConfigError{Field: "TENANT_ID", Message: "tenant and integration ids are required"}
	}
	return c.ValidateStorage()
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// StringList accepts either a YAML sequence or a comma separated string.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = splitList(s)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = nil
		for _, item := range items {
			*l = append(*l, splitList(item)...)
		}
		return nil
	}
	return fmt.Errorf("line %d: expected a list or a comma separated string", node.Line)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Integration is the per-integration metadata file.
type Integration struct {
	// Organizations, when set, replaces organization discovery.
	Organizations StringList `yaml:"organizations"`
	// Projects is the allowlist of "organization/project" names.
	Projects           StringList      `yaml:"projects"`
	Flags              map[string]bool `yaml:"flags"`
	FetchAllIterations bool            `yaml:"fetch_all_iterations"`
}

// LoadIntegration reads an integration file. An empty path yields the zero
// Integration.
func LoadIntegration(path string) (*Integration, error) {
	in := &Integration{}
	if path == "" {
		return in, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read integration file: %w", err)
	}
	if err := yaml.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("failed to parse integration file %s: %w", path, err)
	}
	for name := range in.Flags {
		if !strings.HasPrefix(name, "fetch_") {
			return nil, &ConfigError{Field: "flags." + name, Message: "flag names start with fetch_"}
		}
	}
	for _, p := range in.Projects {
		if !strings.Contains(p, "/") {
			return nil, &ConfigError{Field: "projects", Message: fmt.Sprintf("%q is not of the form organization/project", p)}
		}
	}
	return in, nil
}
