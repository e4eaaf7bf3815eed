// Package shadowid provides the validated identity type used to address a
// shadow document: a (thingName, shadowName) pair (data-model §3). Identities
// are compared by exact, case-sensitive match on both fields.
package shadowid

import (
	"fmt"
	"regexp"
)

const (
	maxThingNameLen  = 128
	maxShadowNameLen = 64
)

// namePattern matches the thing/shadow name character class from spec §6:
// alphanumeric plus colon, underscore, and hyphen.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)

// Identity addresses a single shadow document. ShadowName is empty for the
// classic (unnamed) shadow.
type Identity struct {
	ThingName  string
	ShadowName string
}

// New validates thingName and shadowName and returns the resulting Identity.
// An empty shadowName denotes the classic shadow and is always valid.
func New(thingName, shadowName string) (Identity, error) {
	if err := ValidateThingName(thingName); err != nil {
		return Identity{}, err
	}

	if shadowName != "" {
		if err := ValidateShadowName(shadowName); err != nil {
			return Identity{}, err
		}
	}

	return Identity{ThingName: thingName, ShadowName: shadowName}, nil
}

// ValidateThingName reports whether name is a well-formed thing name.
func ValidateThingName(name string) error {
	if name == "" {
		return fmt.Errorf("shadowid: thing name must not be empty")
	}

	if len(name) > maxThingNameLen {
		return fmt.Errorf("shadowid: thing name %q exceeds %d characters", name, maxThingNameLen)
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("shadowid: thing name %q contains invalid characters", name)
	}

	return nil
}

// ValidateShadowName reports whether name is a well-formed named-shadow name.
// The empty string (classic shadow) is rejected here; callers should special
// case it before calling ValidateShadowName.
func ValidateShadowName(name string) error {
	if name == "" {
		return fmt.Errorf("shadowid: shadow name must not be empty")
	}

	if len(name) > maxShadowNameLen {
		return fmt.Errorf("shadowid: shadow name %q exceeds %d characters", name, maxShadowNameLen)
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("shadowid: shadow name %q contains invalid characters", name)
	}

	return nil
}

// Classic reports whether id addresses the classic (unnamed) shadow.
func (id Identity) Classic() bool {
	return id.ShadowName == ""
}

// String renders the identity as "thing" for classic shadows or
// "thing/shadow" for named shadows. Used in log fields and cache keys.
func (id Identity) String() string {
	if id.Classic() {
		return id.ThingName
	}

	return id.ThingName + "/" + id.ShadowName
}

// Key returns a value suitable for use as a map key uniquely identifying
// this identity. Equivalent to String() today, but kept as a distinct
// accessor so callers don't rely on the string's display format.
func (id Identity) Key() string {
	return id.String()
}
