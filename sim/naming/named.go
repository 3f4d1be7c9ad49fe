// Package naming defines how simulated objects are named.
package naming

import (
	"fmt"
	"regexp"
)

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NamedBase is a base implementation of Named.
type NamedBase struct {
	name string
}

// Name returns the name.
func (b NamedBase) Name() string {
	return b.name
}

// MakeNamedBase creates a new NamedBase. The name must be valid.
func MakeNamedBase(name string) NamedBase {
	NameMustBeValid(name)

	return NamedBase{name: name}
}

// Names are dot-separated tokens. Each token starts with an upper-case letter
// and may carry a bracketed index, e.g. "Accel.WeightBuf[1]".
var tokenPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*(\[[0-9]+\])*$`)

// NameMustBeValid panics if the name does not follow the naming convention.
func NameMustBeValid(name string) {
	if err := CheckName(name); err != nil {
		panic(err)
	}
}

// CheckName returns an error describing why a name is invalid, or nil.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	start := 0
	for i := 0; i <= len(name); i++ {
		if i < len(name) && name[i] != '.' {
			continue
		}

		token := name[start:i]
		if !tokenPattern.MatchString(token) {
			return fmt.Errorf("invalid name %q: bad token %q", name, token)
		}

		start = i + 1
	}

	return nil
}
