package verification

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity is returned when a database or HTTP endpoint cannot be reached.
	ErrConnectivity = errors.New("connectivity error")

	// ErrMeasurementAnomaly is returned when a counter computation yields an implausible value,
	// such as a negative difference between two monotonic counters.
	ErrMeasurementAnomaly = errors.New("measurement anomaly")
)

// ConfigurationError reports invalid caller input. It is the only error that aborts a verification.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
