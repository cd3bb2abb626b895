package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/validation"
)

// ValidationError represents one invalid configuration value
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return &ValidationError{Field: "watch.debounce", Value: config.Watch.Debounce, Message: "must not be negative"}
	}

	for entityType, width := range config.Render.MaxWidth {
		if width < 0 {
			return &ValidationError{
				Field:   "render.max_width." + entityType,
				Value:   width,
				Message: "must not be negative",
			}
		}
	}

	for theme, design := range config.Designs {
		for size, ratio := range design.Sizes {
			if ratio <= 0 {
				return &ValidationError{
					Field:   fmt.Sprintf("designs.%s.sizes.%s", theme, size),
					Value:   ratio,
					Message: "ratio must be positive",
				}
			}
		}
	}

	if config.WorkFolderPath != "" {
		if err := validatePath(config.WorkFolderPath); err != nil {
			return &ValidationError{Field: "work_folder", Value: config.WorkFolderPath, Message: err.Error()}
		}
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return &ValidationError{Field: "log.level", Value: config.Level, Message: err.Error()}
	}
	switch config.Format {
	case "text", "json":
	default:
		return &ValidationError{Field: "log.format", Value: config.Format, Message: "must be text or json"}
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return &ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: "host contains dangerous character: " + char,
			}
		}
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateAllowedOrigin(origin); err != nil {
			return &ValidationError{Field: "server.allowed_origins", Value: origin, Message: err.Error()}
		}
	}

	return nil
}

// validatePath validates a folder path
func validatePath(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.ContainsRune(cleanPath, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	return nil
}
