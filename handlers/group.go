package handlers

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"chatstatus-backend/models"
	"chatstatus-backend/services"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/gin-gonic/gin"
)

// POST /api/groups
func CreateGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	group, err := Engine.CreateGroup(c.Request.Context(), actor, req)
	if err != nil {
		serviceError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Group created", buildGroupResponse(c, group, actor))
}

// GET /api/groups
func GetGroups(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	docs, err := Store.Query(c.Request.Context(), services.ChatsCollection,
		store.Where("type", "==", "group"),
		store.Where("participantIds", "array-contains", actor.ID),
	)
	if err != nil {
		serviceError(c, err)
		return
	}

	groups := make([]*models.Group, 0, len(docs))
	for _, doc := range docs {
		groups = append(groups, models.GroupFromDoc(doc))
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].LastMessageAt.After(groups[j].LastMessageAt)
	})

	responses := make([]models.GroupResponse, 0, len(groups))
	for _, g := range groups {
		responses = append(responses, buildGroupResponse(c, g, actor))
	}
	utils.SuccessResponse(c, http.StatusOK, "", responses)
}

// GET /api/groups/public — discoverable groups anyone can join directly
func DiscoverGroups(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	docs, err := Store.Query(c.Request.Context(), services.ChatsCollection,
		store.Where("type", "==", "group"),
		store.Where("visibility", "==", string(models.VisibilityPublic)),
	)
	if err != nil {
		serviceError(c, err)
		return
	}

	responses := make([]models.GroupResponse, 0, len(docs))
	for _, doc := range docs {
		responses = append(responses, buildGroupResponse(c, models.GroupFromDoc(doc), actor))
	}
	utils.SuccessResponse(c, http.StatusOK, "", responses)
}

// GET /api/groups/:id
func GetGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	group, err := Engine.LoadGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", buildGroupResponse(c, group, actor))
}

// PUT /api/groups/:id — display metadata only; membership goes through the
// dedicated endpoints
func UpdateGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	groupID := c.Param("id")

	group, err := Engine.LoadGroup(c.Request.Context(), groupID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if !group.IsAdmin(actor.ID) {
		serviceError(c, services.ErrNotAuthorized)
		return
	}

	var req models.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if len(updates) > 0 {
		if err := Store.MergeWrite(c.Request.Context(), services.GroupPath(groupID), updates); err != nil {
			serviceError(c, err)
			return
		}
	}

	group, err = Engine.LoadGroup(c.Request.Context(), groupID)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Group updated", buildGroupResponse(c, group, actor))
}

// PUT /api/groups/:id/visibility
func SetVisibility(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.SetVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	err := Engine.SetVisibility(c.Request.Context(), c.Param("id"), models.Visibility(req.Visibility), actor)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Visibility updated", nil)
}

// DELETE /api/groups/:id
func DeleteGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	if err := Engine.DeleteGroup(c.Request.Context(), c.Param("id"), actor); err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Group deleted", nil)
}

// POST /api/groups/:id/join
func JoinGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	outcome, err := Engine.RequestJoin(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		serviceError(c, err)
		return
	}

	switch outcome {
	case services.JoinOutcomeAlreadyMember:
		utils.SuccessResponse(c, http.StatusOK, "Already a member", gin.H{"outcome": outcome})
	case services.JoinOutcomeJoined:
		utils.SuccessResponse(c, http.StatusOK, "Joined group", gin.H{"outcome": outcome})
	default:
		utils.SuccessResponse(c, http.StatusAccepted, "Join request sent", gin.H{"outcome": outcome})
	}
}

// POST /api/groups/join — by PIN or invite code; both act as a capability
// that adds the caller directly, even on private groups
func JoinByCode(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.JoinByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.Pin == "" && req.InviteCode == "" {
		utils.BadRequest(c, "A PIN or invite code is required")
		return
	}

	var (
		group *models.Group
		err   error
	)
	if req.Pin != "" {
		group, err = Engine.FindByPin(c.Request.Context(), req.Pin)
	} else {
		group, err = Engine.FindByInviteCode(c.Request.Context(), req.InviteCode)
	}
	if err != nil {
		serviceError(c, err)
		return
	}

	if err := Engine.AddMember(c.Request.Context(), group.ID, actor, actor); err != nil {
		if errors.Is(err, services.ErrAlreadyMember) {
			// joining twice lands in the same place
			utils.SuccessResponse(c, http.StatusOK, "Already a member", gin.H{"group_id": group.ID})
			return
		}
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Joined group", gin.H{"group_id": group.ID})
}

// GET /api/groups/:id/requests — admin-only view of pending requests
func ListJoinRequests(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	group, err := Engine.LoadGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	if !group.IsAdmin(actor.ID) {
		serviceError(c, services.ErrNotAuthorized)
		return
	}

	responses := make([]models.JoinRequestResponse, 0, len(group.JoinRequests))
	for _, req := range group.JoinRequests {
		responses = append(responses, models.JoinRequestResponse{
			UserID:      req.UserID,
			UserName:    req.UserName,
			UserEmail:   req.UserEmail,
			RequestedAt: req.RequestedAt,
		})
	}
	utils.SuccessResponse(c, http.StatusOK, "", responses)
}

// POST /api/groups/:id/requests/:uid/approve
func ApproveJoinRequest(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	err := Engine.ApproveRequest(c.Request.Context(), c.Param("id"), c.Param("uid"), actor)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Request approved", nil)
}

// POST /api/groups/:id/requests/:uid/reject
func RejectJoinRequest(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	err := Engine.RejectRequest(c.Request.Context(), c.Param("id"), c.Param("uid"), actor)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Request rejected", nil)
}

// POST /api/groups/:id/members — admin adds a known contact directly
func AddMember(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	groupID := c.Param("id")

	group, err := Engine.LoadGroup(c.Request.Context(), groupID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if !group.IsAdmin(actor.ID) {
		serviceError(c, services.ErrNotAuthorized)
		return
	}

	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	target := models.Principal{ID: req.UserID}
	if doc, err := Store.Get(c.Request.Context(), "users/"+req.UserID); err == nil {
		user := models.UserFromDoc(doc)
		target.DisplayName = user.DisplayName
		target.Email = user.Email
	}

	if err := Engine.AddMember(c.Request.Context(), groupID, target, actor); err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Member added", nil)
}

// DELETE /api/groups/:id/members/:uid
func RemoveMember(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	err := Engine.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("uid"), actor)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Member removed", nil)
}

// POST /api/groups/:id/leave
func LeaveGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	if err := Engine.LeaveGroup(c.Request.Context(), c.Param("id"), actor); err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Left group", nil)
}

// PUT /api/groups/:id/members/:uid/admin — promote/demote
func ToggleAdmin(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	err := Engine.ToggleAdmin(c.Request.Context(), c.Param("id"), c.Param("uid"), actor)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Admin role updated", nil)
}

// GET /api/groups/:id/watch — SSE stream of membership signals; ends when the
// caller is removed or the group is deleted
func WatchGroup(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	groupID := c.Param("id")

	group, err := Engine.LoadGroup(c.Request.Context(), groupID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if !group.IsParticipant(actor.ID) {
		serviceError(c, services.ErrNotAuthorized)
		return
	}

	signals, stop, err := Watch.WatchGroup(c.Request.Context(), groupID, actor.ID)
	if err != nil {
		serviceError(c, err)
		return
	}
	defer stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case sig, ok := <-signals:
			if !ok {
				return false
			}
			c.SSEvent("membership", sig)
			return sig.Kind == services.SignalUpdate
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// buildGroupResponse assembles the group read model for a viewer: the PIN and
// invite code are member-only, the pending-request count admin-only.
func buildGroupResponse(c *gin.Context, group *models.Group, viewer models.Principal) models.GroupResponse {
	resp := models.GroupResponse{
		ID:            group.ID,
		Name:          group.Name,
		Description:   group.Description,
		Visibility:    group.Visibility,
		CreatedBy:     group.CreatedBy,
		CreatedAt:     group.CreatedAt,
		LastMessageAt: group.LastMessageAt,
	}

	if !group.IsParticipant(viewer.ID) {
		return resp
	}

	resp.GroupPin = group.GroupPin
	resp.InviteCode = group.InviteCode
	if group.IsAdmin(viewer.ID) {
		resp.PendingCount = len(group.JoinRequests)
	}

	for _, id := range group.ParticipantIDs {
		participant := models.ParticipantResponse{
			UserID:    id,
			IsAdmin:   group.IsAdmin(id),
			IsCreator: id == group.CreatedBy,
		}
		if doc, err := Store.Get(c.Request.Context(), "users/"+id); err == nil {
			user := models.UserFromDoc(doc)
			participant.Name = user.DisplayName
			participant.AvatarURL = user.AvatarURL
		}
		resp.Participants = append(resp.Participants, participant)
	}
	return resp
}
