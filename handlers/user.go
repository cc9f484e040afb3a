package handlers

import (
	"errors"
	"net/http"
	"sort"

	"chatstatus-backend/models"
	"chatstatus-backend/services"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/gin-gonic/gin"
)

// GET /api/users/me
func GetProfile(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	doc, err := Store.Get(c.Request.Context(), "users/"+actor.ID)
	if err == nil {
		utils.SuccessResponse(c, http.StatusOK, "", models.UserFromDoc(doc))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		serviceError(c, err)
		return
	}

	// first sight of a Firebase-authenticated user: seed the profile doc
	seed := map[string]interface{}{
		"displayName": actor.DisplayName,
		"email":       actor.Email,
		"createdAt":   store.ServerNow{},
	}
	if err := Store.MergeWrite(c.Request.Context(), "users/"+actor.ID, seed); err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", &models.User{
		ID:          actor.ID,
		DisplayName: actor.DisplayName,
		Email:       actor.Email,
	})
}

// PUT /api/users/me
func UpdateProfile(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != "" {
		updates["displayName"] = req.DisplayName
	}
	if req.AvatarURL != "" {
		updates["avatarUrl"] = req.AvatarURL
	}
	if len(updates) > 0 {
		if err := Store.MergeWrite(c.Request.Context(), "users/"+actor.ID, updates); err != nil {
			serviceError(c, err)
			return
		}
	}

	doc, err := Store.Get(c.Request.Context(), "users/"+actor.ID)
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Profile updated", models.UserFromDoc(doc))
}

// PUT /api/users/me/fcm-token
func UpdateFCMToken(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.UpdateFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	err := Store.MergeWrite(c.Request.Context(), "users/"+actor.ID, map[string]interface{}{
		"fcmToken": req.Token,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Token updated", nil)
}

// POST /api/users/search — exact email lookup
func SearchUsers(c *gin.Context) {
	var req models.SearchUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	docs, err := Store.Query(c.Request.Context(), "users", store.Where("email", "==", req.Email))
	if err != nil {
		serviceError(c, err)
		return
	}

	results := make([]*models.User, 0, len(docs))
	for _, doc := range docs {
		results = append(results, models.UserFromDoc(doc))
	}
	utils.SuccessResponse(c, http.StatusOK, "", results)
}

// GET /api/contacts — users who share a chat with the caller, for the
// "recent contacts" add flow
func RecentContacts(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	docs, err := Store.Query(c.Request.Context(), services.ChatsCollection,
		store.Where("participantIds", "array-contains", actor.ID),
	)
	if err != nil {
		serviceError(c, err)
		return
	}

	seen := map[string]bool{actor.ID: true}
	var contacts []*models.User
	for _, doc := range docs {
		for _, id := range doc.StringsField("participantIds") {
			if seen[id] {
				continue
			}
			seen[id] = true
			if userDoc, err := Store.Get(c.Request.Context(), "users/"+id); err == nil {
				contacts = append(contacts, models.UserFromDoc(userDoc))
			} else {
				contacts = append(contacts, &models.User{ID: id})
			}
		}
	}

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].DisplayName < contacts[j].DisplayName
	})
	utils.SuccessResponse(c, http.StatusOK, "", contacts)
}
