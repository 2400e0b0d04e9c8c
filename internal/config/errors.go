package config

import "fmt"

// ConfigError reports bad or missing input detected before any external
// call is made: unknown frequency labels, malformed registry entries,
// missing credentials.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return "configuration error: " + msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
