package game

import "errors"

// Code identifies a user-visible failure. Codes are stable strings sent
// over the wire in error events; clients switch on them.
type Code string

const (
	CodeAlreadyQueued      Code = "ALREADY_QUEUED"
	CodeAlreadyInChallenge Code = "ALREADY_IN_CHALLENGE"
	CodeAlreadyInMatch     Code = "ALREADY_IN_MATCH"
	CodeSelfChallenge      Code = "SELF_CHALLENGE"
	CodeDuplicateChallenge Code = "DUPLICATE_CHALLENGE"
	CodeTargetOffline      Code = "TARGET_OFFLINE"
	CodeTargetBusy         Code = "TARGET_BUSY"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNotTarget          Code = "NOT_TARGET"
	CodeNotChallenger      Code = "NOT_CHALLENGER"
	CodeNotPending         Code = "NOT_PENDING"
	CodeNotRacingYet       Code = "NOT_RACING_YET"
	CodeForbidden          Code = "FORBIDDEN"
	CodeBadPayload         Code = "BAD_PAYLOAD"
	CodeInternal           Code = "INTERNAL"
)

// Error is a typed, user-visible failure: a stable code plus a
// human-readable message. Internal faults are never wrapped into one.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsGameError unwraps err into a typed game error, if it is one.
func AsGameError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
