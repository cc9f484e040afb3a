package handlers

import (
	"errors"
	"net/http"

	"chatstatus-backend/services"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/gin-gonic/gin"
)

// Package-level collaborators, wired once at startup (and by handler tests).
var (
	Store  store.Store
	Engine *services.Membership
	Watch  *services.Watcher
)

func Init(st store.Store, engine *services.Membership, watcher *services.Watcher) {
	Store = st
	Engine = engine
	Watch = watcher
}

// serviceError maps the membership failure taxonomy onto HTTP statuses.
// Transport failures and permission loss get distinct responses: 503 means
// retry later, 403 on a store error means the caller's access is gone.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		utils.Forbidden(c, "Only group admins can do that")
	case errors.Is(err, services.ErrCannotRemoveCreator):
		utils.BadRequest(c, "The group creator cannot be removed")
	case errors.Is(err, services.ErrCreatorCannotLeave):
		utils.BadRequest(c, "The creator cannot leave the group; delete it instead")
	case errors.Is(err, services.ErrDuplicateRequest):
		utils.Conflict(c, "You already have a pending request for this group")
	case errors.Is(err, services.ErrAlreadyMember):
		utils.Conflict(c, "User is already a member of this group")
	case errors.Is(err, services.ErrNotParticipant):
		utils.BadRequest(c, "User is not a participant of this group")
	case errors.Is(err, services.ErrRequestNotFound):
		utils.NotFound(c, "Join request not found")
	case errors.Is(err, services.ErrGroupNotFound), errors.Is(err, store.ErrNotFound):
		utils.NotFound(c, "Group not found")
	case errors.Is(err, store.ErrPermissionDenied):
		utils.Forbidden(c, "You no longer have access to this group")
	case errors.Is(err, store.ErrUnavailable):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Backend unavailable, try again later")
	default:
		utils.InternalError(c, "Something went wrong")
	}
}
