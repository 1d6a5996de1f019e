// Package config holds the runtime settings of clubpointsd.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
)

const (
	defaultDatabaseURL        = "sqlite:///tmp/clubpoints.db"
	defaultListenAddr         = ":8080"
	defaultAllowedOrigin      = "http://localhost:3000"
	defaultJWTIssuer          = "clubpoints"
	defaultRequestTimeout     = 10 * time.Second
	defaultSubmissionThrottle = 3 * time.Second

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// ErrInvalidConfig classifies every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for the server.
type Config struct {
	DatabaseURL           string
	ListenAddr            string
	RedisURL              string
	JWTSigningKey         string
	JWTIssuer             string
	AllowedOrigins        []string
	RequestTimeout        time.Duration
	SubmissionThrottle    time.Duration
	MinEventPhotos        int
	MembershipPoints      int64
	EventAttendeePoints   int64
	SessionAttendeePoints int64
	ReportApprovalPoints  int64
	LogFormat             string
}

// Default returns a Config populated with the workflow defaults.
func Default() Config {
	policy := workflow.DefaultPolicy()
	return Config{
		DatabaseURL:           defaultDatabaseURL,
		ListenAddr:            defaultListenAddr,
		JWTIssuer:             defaultJWTIssuer,
		AllowedOrigins:        []string{defaultAllowedOrigin},
		RequestTimeout:        defaultRequestTimeout,
		SubmissionThrottle:    defaultSubmissionThrottle,
		MinEventPhotos:        policy.MinEventPhotos,
		MembershipPoints:      policy.MembershipPoints,
		EventAttendeePoints:   policy.EventAttendeePoints,
		SessionAttendeePoints: policy.SessionAttendeePoints,
		ReportApprovalPoints:  policy.ReportApprovalPoints,
		LogFormat:             LogFormatJSON,
	}
}

// Validate fills empty values with defaults and rejects invalid ones.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.LogFormat = strings.ToLower(defaultIfEmpty(cfg.LogFormat, LogFormatJSON))

	if len(strings.TrimSpace(cfg.JWTSigningKey)) == 0 {
		return fmt.Errorf("%w: jwt signing key is required", ErrInvalidConfig)
	}
	if cfg.SubmissionThrottle < 0 {
		return fmt.Errorf("%w: submission throttle must not be negative", ErrInvalidConfig)
	}
	if cfg.MinEventPhotos < 0 {
		return fmt.Errorf("%w: min event photos must not be negative", ErrInvalidConfig)
	}
	for name, value := range map[string]int64{
		"membership points":       cfg.MembershipPoints,
		"event attendee points":   cfg.EventAttendeePoints,
		"session attendee points": cfg.SessionAttendeePoints,
		"report approval points":  cfg.ReportApprovalPoints,
	} {
		if value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	if cfg.LogFormat != LogFormatJSON && cfg.LogFormat != LogFormatConsole {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, cfg.LogFormat)
	}
	return nil
}

// Policy returns the workflow constants configured for this deployment.
func (cfg Config) Policy() workflow.Policy {
	return workflow.Policy{
		MinEventPhotos:        cfg.MinEventPhotos,
		MembershipPoints:      cfg.MembershipPoints,
		EventAttendeePoints:   cfg.EventAttendeePoints,
		SessionAttendeePoints: cfg.SessionAttendeePoints,
		ReportApprovalPoints:  cfg.ReportApprovalPoints,
	}
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
