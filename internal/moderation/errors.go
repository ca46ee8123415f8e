package moderation

import "errors"

var (
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrAlreadyFrozen           = errors.New("user is already frozen")
	ErrAlreadyBanned           = errors.New("user is already banned")
	ErrNotBanned               = errors.New("user is not banned")
	ErrNotFrozen               = errors.New("user is not frozen")
	ErrNoMemberNoRestore       = errors.New("user is not in the guild, roles cannot be restored")
	ErrFrozenUnfreezeFailed    = errors.New("user is frozen and could not be unfrozen")
	ErrTargetIsBot             = errors.New("target is a bot")
	ErrNotMember               = errors.New("user is not a member of the guild")
	ErrInvalidDuration         = errors.New("ban duration must be positive")

	ErrPlatform    = errors.New("discord request failed")
	ErrPersistence = errors.New("database request failed")
)

// expected is ordered so that an outer outcome wins over the cause it wraps.
var expected = []error{
	ErrFrozenUnfreezeFailed,
	ErrInsufficientPermissions,
	ErrAlreadyFrozen,
	ErrAlreadyBanned,
	ErrNotBanned,
	ErrNotFrozen,
	ErrNoMemberNoRestore,
	ErrTargetIsBot,
	ErrNotMember,
	ErrInvalidDuration,
}

// UserFacing reports whether err is an expected outcome that can be shown to
// the caller verbatim.
func UserFacing(err error) bool {
	return Reason(err) != nil
}

// Reason returns the expected outcome err wraps, or nil when err is an
// internal failure.
func Reason(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range expected {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}
