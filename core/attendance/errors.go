package attendance

import "errors"

var (
	// redemption, in the order they are checked
	ErrInvalidCode    = errors.New("Invalid attendance code")
	ErrSessionExpired = errors.New("Attendance session expired")
	ErrForbidden      = errors.New("Not allowed for this class")
	ErrAlreadyMarked  = errors.New("Attendance already marked")

	ErrAttendanceExists = errors.New("Attendance already exists for this subject and date")
	ErrNoActiveSession  = errors.New("No active attendance session")
	ErrCodeExhausted    = errors.New("could not generate a unique attendance code")

	// storage
	ErrSessionNotFound = errors.New("attendance session not found")
	ErrDuplicateRecord = errors.New("attendance record already exists")
	ErrCodeCollision   = errors.New("attendance code already in use")
	ErrSessionConflict = errors.New("teacher already has an active session")

	// validation
	ErrDuplicateStudent = errors.New("a student can only appear once per batch")
)
