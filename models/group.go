package models

import (
	"time"

	"chatstatus-backend/store"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

const JoinRequestPending = "pending"

// JoinRequest is a pending record of a non-member's intent to join a private
// group. Approved/rejected requests are deleted, never transitioned in place.
type JoinRequest struct {
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	UserEmail   string    `json:"userEmail"`
	RequestedAt time.Time `json:"requestedAt"`
	Status      string    `json:"status"`
}

// Group is the decoded view of a group chat document. Groups live in the
// chats collection (type "group"); their message log is the messages
// subcollection of the same document.
type Group struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Visibility     Visibility    `json:"visibility"`
	ParticipantIDs []string      `json:"participantIds"`
	AdminIDs       []string      `json:"adminIds"`
	CreatedBy      string        `json:"createdBy"`
	JoinRequests   []JoinRequest `json:"joinRequests,omitempty"`
	GroupPin       string        `json:"groupPin"`
	InviteCode     string        `json:"inviteCode"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastMessageAt  time.Time     `json:"lastMessageAt"`
}

func (g *Group) IsParticipant(userID string) bool {
	for _, id := range g.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (g *Group) IsAdmin(userID string) bool {
	for _, id := range g.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PendingRequest finds the actor's pending join request, if any.
func (g *Group) PendingRequest(userID string) (JoinRequest, bool) {
	for _, req := range g.JoinRequests {
		if req.UserID == userID && req.Status == JoinRequestPending {
			return req, true
		}
	}
	return JoinRequest{}, false
}

// GroupFromDoc decodes a chat document into a Group. Missing visibility
// defaults to public.
func GroupFromDoc(doc *store.Document) *Group {
	g := &Group{
		ID:             doc.ID,
		Name:           doc.StringField("name"),
		Description:    doc.StringField("description"),
		Visibility:     Visibility(doc.StringField("visibility")),
		ParticipantIDs: doc.StringsField("participantIds"),
		AdminIDs:       doc.StringsField("adminIds"),
		CreatedBy:      doc.StringField("createdBy"),
		GroupPin:       doc.StringField("groupPin"),
		InviteCode:     doc.StringField("inviteCode"),
		CreatedAt:      doc.TimeField("createdAt"),
		LastMessageAt:  doc.TimeField("lastMessageAt"),
	}
	if g.Visibility == "" {
		g.Visibility = VisibilityPublic
	}
	for _, raw := range doc.MapsField("joinRequests") {
		req := JoinRequest{Status: JoinRequestPending}
		if v, ok := raw["userId"].(string); ok {
			req.UserID = v
		}
		if v, ok := raw["userName"].(string); ok {
			req.UserName = v
		}
		if v, ok := raw["userEmail"].(string); ok {
			req.UserEmail = v
		}
		if v, ok := raw["status"].(string); ok {
			req.Status = v
		}
		req.RequestedAt = store.AsTime(raw["requestedAt"])
		g.JoinRequests = append(g.JoinRequests, req)
	}
	return g
}

// Request structs
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SetVisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required,oneof=public private"`
}

type JoinByCodeRequest struct {
	Pin        string `json:"pin"`
	InviteCode string `json:"invite_code"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Response structs
type GroupResponse struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Visibility    Visibility            `json:"visibility"`
	GroupPin      string                `json:"group_pin,omitempty"`
	InviteCode    string                `json:"invite_code,omitempty"`
	CreatedBy     string                `json:"created_by"`
	Participants  []ParticipantResponse `json:"participants"`
	PendingCount  int                   `json:"pending_count"`
	CreatedAt     time.Time             `json:"created_at"`
	LastMessageAt time.Time             `json:"last_message_at"`
}

type ParticipantResponse struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	IsCreator bool   `json:"is_creator"`
}

type JoinRequestResponse struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	RequestedAt time.Time `json:"requested_at"`
}
