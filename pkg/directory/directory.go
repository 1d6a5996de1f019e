// Package directory holds the people and places the scoring core works against:
// users with their roles, regions and clubs, and the authenticated actor that
// accompanies every mutating call.
package directory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidActor is returned when a mutating call arrives without an identity.
var ErrInvalidActor = errors.New("invalid actor")

// Role is a platform role.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleRegionalLeader Role = "regional_leader"
	RoleAmbassador     Role = "ambassador"
	RoleMember         Role = "member"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.TrimSpace(raw)); role {
	case RoleAdmin, RoleRegionalLeader, RoleAmbassador, RoleMember:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// String returns the stored representation.
func (role Role) String() string {
	return string(role)
}

// Reviewer reports whether the role may review entities it does not own.
func (role Role) Reviewer() bool {
	return role == RoleAdmin || role == RoleRegionalLeader
}

// User is a directory record.
type User struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	Role      Role
	RegionID  string
	// ExodeCoursePoints is maintained by an external sync and never ledger-backed.
	ExodeCoursePoints int64
}

// Region groups clubs geographically.
type Region struct {
	ID   string
	Name string
}

// Club is a local chapter, optionally led by an ambassador.
type Club struct {
	ID           string
	Name         string
	RegionID     string
	AmbassadorID string
}

// Actor is the pre-authenticated identity performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// NewActor validates an actor identity.
func NewActor(id string, role Role) (Actor, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Actor{}, fmt.Errorf("%w: empty id", ErrInvalidActor)
	}
	if _, err := ParseRole(role.String()); err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidActor, err)
	}
	return Actor{ID: trimmed, Role: role}, nil
}

// Validate checks an actor built without NewActor.
func (actor Actor) Validate() error {
	_, err := NewActor(actor.ID, actor.Role)
	return err
}

// Owns reports whether the actor is the given owner.
func (actor Actor) Owns(ownerID string) bool {
	return ownerID != "" && actor.ID == ownerID
}
