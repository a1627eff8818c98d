// Package access decides whether a list member may perform an action.
// Membership is the only gate: a missing membership is never treated as
// public access.
package access

import (
	"errors"
	"fmt"

	"github.com/nhle/tido/internal/model"
)

// ErrDenied is returned when the caller lacks the required permission.
var ErrDenied = errors.New("access denied")

func rank(p model.Permission) int {
	switch p {
	case model.PermissionAdmin:
		return 2
	case model.PermissionEditor:
		return 1
	default:
		return 0
	}
}

// Allows reports whether member holds at least need.
func Allows(member *model.Member, need model.Permission) bool {
	if member == nil {
		return false
	}
	r := rank(member.Permission)
	return r > 0 && r >= rank(need)
}

// Require returns ErrDenied unless member holds at least need.
func Require(member *model.Member, need model.Permission) error {
	if member == nil {
		return fmt.Errorf("%w: not a member", ErrDenied)
	}
	if !Allows(member, need) {
		return fmt.Errorf("%w: %s permission required", ErrDenied, need)
	}
	return nil
}

// RequireSiteAdmin gates account administration.
func RequireSiteAdmin(u *model.User) error {
	if u == nil || !u.IsAdmin {
		return fmt.Errorf("%w: site admin required", ErrDenied)
	}
	return nil
}
