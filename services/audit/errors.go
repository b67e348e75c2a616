package audit

import "errors"

var (
	// ErrValidation is returned when a required field is missing or a query
	// parameter is out of range. Nothing is written to the store.
	ErrValidation = errors.New("validation failed")
	// ErrStorageUnavailable wraps any failure of the underlying store.
	ErrStorageUnavailable = errors.New("audit storage unavailable")
	// ErrExportWrite wraps a failure writing an export to its destination,
	// typically a client that went away.
	ErrExportWrite = errors.New("export destination write failed")
	// ErrForbidden is returned for a missing or invalid admin credential.
	ErrForbidden = errors.New("forbidden")
	// ErrSweepFailed wraps a store failure during a retention sweep.
	ErrSweepFailed = errors.New("retention sweep failed")
	// ErrSweepInProgress is returned when a sweep is requested while another
	// one is still running.
	ErrSweepInProgress = errors.New("retention sweep already in progress")
	// ErrRetentionDisabled is returned for a manual purge when retention is 0.
	ErrRetentionDisabled = errors.New("retention disabled")
)
