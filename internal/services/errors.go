package services

import "errors"

// Every error below is an expected, caller-recoverable outcome. Handlers map
// them to HTTP statuses; nothing here is a system fault.
var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrMentorNotFound = errors.New("mentor not found")

	// availability setup
	ErrInvalidRange   = errors.New("start time must be before end time")
	ErrOverlap        = errors.New("slot overlaps an existing slot")
	ErrOutOfWindow    = errors.New("date is outside the allowed blocking window")
	ErrAlreadyBlocked = errors.New("date is already blocked")

	// booking races and staleness
	ErrSlotUnavailable = errors.New("requested start is not an available slot")
	ErrSlotTaken       = errors.New("requested slot was taken by another booking")
	ErrInvalidState    = errors.New("invalid state transition")

	// group sessions
	ErrSessionFull      = errors.New("session is at capacity")
	ErrAlreadyJoined    = errors.New("consumer already joined this session")
	ErrNotJoined        = errors.New("consumer has not joined this session")
	ErrHasParticipants  = errors.New("session already has participants")
	ErrLeadTimeTooShort = errors.New("session must be scheduled further in advance")
	ErrInvalidCapacity  = errors.New("capacity bounds are invalid")
)
