// Package version parses the plain "MAJOR.MINOR.PATCH[-pre][+build]" version
// strings used on the wire and in map catalogs.
package version

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrMalformed is returned for strings that are not full semantic versions.
var ErrMalformed = errors.New("malformed version")

// Version is a validated semantic version without the leading "v".
type Version struct {
	canonical string // "v"-prefixed, as golang.org/x/mod/semver expects
}

// Parse validates s. All three numeric components are required.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	v := "v" + s
	if s == "" || !semver.IsValid(v) {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Version{canonical: v}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or +1. Build metadata is ignored.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical, other.canonical)
}

// AtMost reports whether v <= limit.
func (v Version) AtMost(limit Version) bool {
	return v.Compare(limit) <= 0
}

// Prerelease returns the pre-release suffix without the "-", or "".
func (v Version) Prerelease() string {
	return strings.TrimPrefix(semver.Prerelease(v.canonical), "-")
}

// Allowed reports whether v satisfies the requirement "<= limit". A
// pre-release only matches when limit is a pre-release of the same
// MAJOR.MINOR.PATCH.
func (v Version) Allowed(limit Version) bool {
	if v.Prerelease() != "" {
		if limit.Prerelease() == "" || v.release() != limit.release() {
			return false
		}
	}
	return v.AtMost(limit)
}

func (v Version) release() string {
	return strings.TrimSuffix(semver.Canonical(v.canonical), semver.Prerelease(v.canonical))
}

// Less reports whether v < other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.canonical == ""
}

func (v Version) String() string {
	return strings.TrimPrefix(v.canonical, "v")
}
