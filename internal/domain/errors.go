package domain

import "fmt"

// ConfigError reports a fatal problem with the run configuration or the
// reference data layout. It aborts the whole run.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Subject, e.Reason)
}

// NewConfigError creates a ConfigError with a formatted reason.
func NewConfigError(subject, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}
