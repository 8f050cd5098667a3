package modular

import (
	"fmt"
)

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(structure any) error
}

// LoadConfig fills cfg from its default tags, then from each feeder in
// order (later feeders win), then checks required fields and runs Validate.
func LoadConfig(cfg any, feeders ...Feeder) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	for _, f := range feeders {
		if err := f.Feed(cfg); err != nil {
			return fmt.Errorf("%w: %T: %w", ErrConfigFeederError, f, err)
		}
	}
	// Defaults are not re-applied here: a feeder may set a bool to false.
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if validator, ok := cfg.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
