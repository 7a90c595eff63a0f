package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL     string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string

	// Collaborator service endpoints called through the tool gateway.
	NotifyURL      string
	ApprovalURL    string
	ProvisionerURL string

	// ToolTimeout bounds a single outbound tool call.
	ToolTimeout time.Duration

	// ApprovalTimeout is the schedule-to-close window for a human decision.
	// After this elapses without a decision the request is rejected.
	ApprovalTimeout time.Duration
	// ApprovalCheckTimeout bounds the automated approval check activity.
	ApprovalCheckTimeout time.Duration

	ProvisionMaxAttempts          int
	ProvisionRetryInitialInterval time.Duration
	ProvisionRetryMaxInterval     time.Duration

	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		TemporalAddress: getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServiceName:     getEnv("SERVICE_NAME", ""),

		NotifyURL:      getEnv("NOTIFY_URL", ""),
		ApprovalURL:    getEnv("APPROVAL_URL", ""),
		ProvisionerURL: getEnv("PROVISIONER_URL", ""),

		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
	}

	var err error
	if cfg.ToolTimeout, err = getDuration("TOOL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ApprovalTimeout, err = getDuration("APPROVAL_TIMEOUT", 72*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ApprovalCheckTimeout, err = getDuration("APPROVAL_CHECK_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProvisionMaxAttempts, err = getInt("PROVISION_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.ProvisionRetryInitialInterval, err = getDuration("PROVISION_RETRY_INITIAL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProvisionRetryMaxInterval, err = getDuration("PROVISION_RETRY_MAX_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields required by the given role are set.
func (c *Config) Validate(role string) error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if role == "worker" {
		if c.NotifyURL == "" {
			missing = append(missing, "NOTIFY_URL")
		}
		if c.ApprovalURL == "" {
			missing = append(missing, "APPROVAL_URL")
		}
		if c.ProvisionerURL == "" {
			missing = append(missing, "PROVISIONER_URL")
		}
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must be set together")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	if c.ProvisionMaxAttempts < 1 {
		return fmt.Errorf("PROVISION_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
