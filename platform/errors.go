package platform

import (
	"errors"
)

var (
	// The platform refused the operation: the bot lacks a permission or is below the target in role hierarchy.
	ErrForbidden = errors.New("platform: forbidden")
	// The target (member, ban, message, invite, guild) does not exist.
	ErrNotFound = errors.New("platform: not found")
)

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
