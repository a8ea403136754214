package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when the caller has not joined the room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrForbidden is returned when the caller lacks host authority.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no valid identity accompanies a request.
	// It matches ErrForbidden.
	ErrUnauthenticated = fmt.Errorf("%w: unauthenticated", ErrForbidden)
	// ErrInvalidInput indicates malformed indices or payloads.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition indicates a lifecycle command is illegal in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyAnswered is returned when the player already answered the question.
	ErrAlreadyAnswered = errors.New("already answered")
	// ErrRoomFinished is returned for submissions and joins against a finished room.
	ErrRoomFinished = errors.New("room finished")
	// ErrRoomFull is returned when a join would exceed the configured capacity.
	ErrRoomFull = errors.New("room full")
	// ErrRoomExists is returned by stores when a generated code collides.
	ErrRoomExists = errors.New("room already exists")
	// ErrStoreUnavailable marks a transient backing-store failure. It is the only retryable class.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Retryable reports whether the caller may safely retry the identical call.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound matches both missing rooms and missing players.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrQuestionSetNotFound)
}
