package errors

import "fmt"

var (
	ErrUnauthorized         = fmt.Errorf("unauthorized")
	ErrAccessDenied         = fmt.Errorf("access denied")
	ErrNotMember            = fmt.Errorf("join room first: %w", ErrAccessDenied)
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrInvalidMessage       = fmt.Errorf("message cannot be empty")
	ErrRateLimited          = fmt.Errorf("rate limit exceeded")
	ErrSessionClosed        = fmt.Errorf("session closed")
	ErrAlreadyAuthenticated = fmt.Errorf("session already authenticated")

	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrRoomAlreadyExists  = fmt.Errorf("room already exists")
	ErrMembershipNotFound = fmt.Errorf("membership not found")
)
