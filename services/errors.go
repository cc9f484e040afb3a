package services

import "errors"

// Failure modes of membership operations, surfaced synchronously to handlers.
// Store-level failures (store.ErrNotFound, store.ErrPermissionDenied,
// store.ErrUnavailable) pass through wrapped.
var (
	ErrNotAuthorized       = errors.New("admin rights required")
	ErrCannotRemoveCreator = errors.New("the group creator cannot be removed")
	ErrCreatorCannotLeave  = errors.New("the creator cannot leave the group, only delete it")
	ErrDuplicateRequest    = errors.New("a join request is already pending for this user")
	ErrAlreadyMember       = errors.New("user is already a member of this group")
	ErrRequestNotFound     = errors.New("join request not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrNotParticipant      = errors.New("user is not a participant of this group")
)
