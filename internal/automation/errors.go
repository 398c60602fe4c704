package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrUnknownTarget) {
//	    // the rule references a room that does not exist
//	}
var (
	// ErrActionNotFound is returned when an action name does not exist.
	ErrActionNotFound = errors.New("automation: action not found")

	// ErrActionExists is returned when adding an action whose name or slug is taken.
	ErrActionExists = errors.New("automation: action already exists")

	// ErrInvalidAction is returned when an action definition is incomplete.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrInvalidName is returned when an action name is empty or too long.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidTrigger is returned when trigger parameters are out of range.
	ErrInvalidTrigger = errors.New("automation: invalid trigger")

	// ErrUnknownTrigger is returned when decoding an unregistered trigger type.
	ErrUnknownTrigger = errors.New("automation: unknown trigger type")

	// ErrUnknownExecutor is returned when decoding an unregistered executor type.
	ErrUnknownExecutor = errors.New("automation: unknown executor type")

	// ErrUnknownCondition is returned for a condition outside the vocabulary.
	ErrUnknownCondition = errors.New("automation: unknown condition")

	// ErrUnknownTarget is returned when a target descriptor names no room.
	ErrUnknownTarget = errors.New("automation: unknown target")
)
