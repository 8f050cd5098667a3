package feeders

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file into a struct using its toml tags.
type TomlFeeder struct {
	Path     string
	Optional bool
}

// NewTomlFeeder creates a TomlFeeder for path.
func NewTomlFeeder(path string) TomlFeeder {
	return TomlFeeder{Path: path}
}

// Feed decodes the file over structure. Keys present in the file but not in
// the struct are rejected so typos surface early.
func (t TomlFeeder) Feed(structure any) error {
	if !isStructPtr(structure) {
		return ErrInvalidStructure
	}
	md, err := toml.DecodeFile(t.Path, structure)
	if err != nil {
		if t.Optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w %s: %w", ErrDecode, t.Path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w %s: unknown keys %v", ErrDecode, t.Path, undecoded)
	}
	return nil
}
