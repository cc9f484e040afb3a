package handlers

import (
	"net/http"
	"sort"
	"strings"

	"chatstatus-backend/models"
	"chatstatus-backend/services"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/gin-gonic/gin"
)

// GET /api/chats — every chat (group or direct) the caller is in, most
// recent first, with unread flags
func ListChats(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	docs, err := Store.Query(c.Request.Context(), services.ChatsCollection,
		store.Where("participantIds", "array-contains", actor.ID),
	)
	if err != nil {
		serviceError(c, err)
		return
	}

	summaries := make([]models.ChatSummary, 0, len(docs))
	for _, doc := range docs {
		summary := models.ChatSummary{
			ID:            doc.ID,
			Type:          doc.StringField("type"),
			Name:          doc.StringField("name"),
			LastMessageAt: doc.TimeField("lastMessageAt"),
		}
		if summary.Type == "group" {
			group := models.GroupFromDoc(doc)
			summary.Visibility = group.Visibility
		} else {
			summary.Name = directChatName(c, doc, actor.ID)
		}
		lastRead := models.LastReadAt(doc, actor.ID)
		summary.Unread = !summary.LastMessageAt.IsZero() && summary.LastMessageAt.After(lastRead)
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})
	utils.SuccessResponse(c, http.StatusOK, "", summaries)
}

// POST /api/chats/direct — find or create the direct chat for a user pair
func CreateDirectChat(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)

	var req models.DirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if req.UserID == actor.ID {
		utils.BadRequest(c, "Cannot open a direct chat with yourself")
		return
	}

	pairKey := directPairKey(actor.ID, req.UserID)
	existing, err := Store.Query(c.Request.Context(), services.ChatsCollection,
		store.Where("type", "==", "direct"),
		store.Where("pairKey", "==", pairKey),
	)
	if err != nil {
		serviceError(c, err)
		return
	}
	if len(existing) > 0 {
		utils.SuccessResponse(c, http.StatusOK, "", gin.H{"chat_id": existing[0].ID})
		return
	}

	doc, err := Store.Create(c.Request.Context(), services.ChatsCollection, map[string]interface{}{
		"type":           "direct",
		"pairKey":        pairKey,
		"participantIds": []string{actor.ID, req.UserID},
		"createdAt":      store.ServerNow{},
		"lastMessageAt":  store.ServerNow{},
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Chat created", gin.H{"chat_id": doc.ID})
}

// GET /api/chats/:id/messages
func GetMessages(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	chatID := c.Param("id")

	if !requireChatMember(c, chatID, actor.ID) {
		return
	}

	docs, err := Store.Query(c.Request.Context(), services.MessagesCollection(chatID))
	if err != nil {
		serviceError(c, err)
		return
	}

	messages := make([]*models.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, models.MessageFromDoc(doc))
	}
	// the log is append-only but unordered in the store; order here
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	utils.SuccessResponse(c, http.StatusOK, "", messages)
}

// POST /api/chats/:id/messages
func SendMessage(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	chatID := c.Param("id")

	if !requireChatMember(c, chatID, actor.ID) {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	doc, err := Store.Create(c.Request.Context(), services.MessagesCollection(chatID), map[string]interface{}{
		"senderId":   actor.ID,
		"senderName": actor.DisplayName,
		"text":       req.Text,
		"type":       models.MessageTypeText,
		"sentAt":     store.ServerNow{},
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	// sending implies reading everything up to your own message
	err = Store.MergeWrite(c.Request.Context(), services.ChatPath(chatID), map[string]interface{}{
		"lastMessageAt": store.ServerNow{},
		"lastReadAt":    map[string]interface{}{actor.ID: store.ServerNow{}},
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Message sent", gin.H{"message_id": doc.ID})
}

// POST /api/chats/:id/read — stamp the caller's read marker
func MarkRead(c *gin.Context) {
	actor := utils.CurrentPrincipal(c)
	chatID := c.Param("id")

	if !requireChatMember(c, chatID, actor.ID) {
		return
	}

	err := Store.MergeWrite(c.Request.Context(), services.ChatPath(chatID), map[string]interface{}{
		"lastReadAt": map[string]interface{}{actor.ID: store.ServerNow{}},
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", nil)
}

// requireChatMember loads the chat and rejects non-participants. Returns
// false after writing the error response.
func requireChatMember(c *gin.Context, chatID, userID string) bool {
	doc, err := Store.Get(c.Request.Context(), services.ChatPath(chatID))
	if err != nil {
		serviceError(c, err)
		return false
	}
	for _, id := range doc.StringsField("participantIds") {
		if id == userID {
			return true
		}
	}
	utils.Forbidden(c, "You are not a member of this chat")
	return false
}

func directChatName(c *gin.Context, doc *store.Document, selfID string) string {
	for _, id := range doc.StringsField("participantIds") {
		if id == selfID {
			continue
		}
		if userDoc, err := Store.Get(c.Request.Context(), "users/"+id); err == nil {
			if name := userDoc.StringField("displayName"); name != "" {
				return name
			}
		}
		return id
	}
	return ""
}

// directPairKey is the canonical identity of a user pair, order-independent.
func directPairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "_" + b
}
