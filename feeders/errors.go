package feeders

import (
	"errors"
)

var (
	ErrInvalidStructure = errors.New("feeder: expected pointer to struct")
	ErrFileRead         = errors.New("feeder: cannot read file")
	ErrDecode           = errors.New("feeder: cannot decode file")
	ErrEnvConversion    = errors.New("env: cannot convert value")
)
