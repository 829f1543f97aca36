package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for pose regulation.
var (
	// ErrInvalidConfig indicates a controller or loop parameter outside its valid range.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrUnknownStrategy indicates a strategy name that maps to no controller.
	ErrUnknownStrategy = errors.New("dynamo: unknown control strategy")

	// ErrNoPose indicates the loop ended before any pose sample arrived.
	ErrNoPose = errors.New("dynamo: no pose received")

	// ErrInvalidState indicates a pose sample with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid pose (NaN or Inf detected)")
)

// ConfigError reports the offending field of a rejected configuration.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s = %g: %s", ErrInvalidConfig, e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
