package activities

import "errors"

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrAlreadySignedUp  = errors.New("student is already signed up")
	ErrActivityFull     = errors.New("activity is at full capacity")
	ErrNotSignedUp      = errors.New("student is not signed up for this activity")
	ErrInvalidEmail     = errors.New("email is required")
)
