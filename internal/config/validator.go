package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateCapture(&cfg.Capture)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Format) {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateCapture(cfg *CaptureConfig) {
	if strings.TrimSpace(cfg.Dir) == "" {
		v.addError("capture.dir", cfg.Dir, "must not be empty")
	}
	if cfg.MaxFiles < 1 {
		v.addError("capture.max_files", cfg.MaxFiles, "must be at least 1")
	}
	v.validateDuration("capture.collect_timeout", cfg.CollectTimeout, true)
	v.validateDuration("capture.monitor_interval", cfg.MonitorInterval, false)

	if cfg.Limits.FDPercent < 0 || cfg.Limits.FDPercent > 100 {
		v.addError("capture.limits.fd_percent", cfg.Limits.FDPercent, "must be between 0 and 100")
	}
	if cfg.Limits.Goroutines < 0 {
		v.addError("capture.limits.goroutines", cfg.Limits.Goroutines, "must not be negative")
	}
	if cfg.Limits.HeapMB < 0 {
		v.addError("capture.limits.heap_mb", cfg.Limits.HeapMB, "must not be negative")
	}
}

// validateDuration checks a Go duration string. Zero is allowed unless
// positive is set; empty selects the default.
func (v *Validator) validateDuration(field, value string, positive bool) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration")
		return
	}
	if d < 0 || (positive && d == 0) {
		v.addError(field, value, "must be positive")
	}
}
