package version

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// Version is the semantic version of the portapty module.
const Version = "0.1.0"

// Parse parses a version string.
func Parse(v string) (*version.Version, error) {
	return version.NewVersion(v)
}

// Current returns the current version as a parsed version object.
// Panics if the Version constant is not a valid semantic version.
func Current() *version.Version {
	v, err := Parse(Version)
	if err != nil {
		panic(fmt.Sprintf("invalid version constant %q: %v", Version, err))
	}
	return v
}

// String returns the current version as a string.
func String() string {
	return Version
}
