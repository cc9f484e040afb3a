package models

import (
	"time"

	"chatstatus-backend/store"
)

// Principal is the authenticated identity acting on every operation. It is
// always passed explicitly, never read from ambient state.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// User is the profile document at users/{uid}.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	FCMToken    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func UserFromDoc(doc *store.Document) *User {
	return &User{
		ID:          doc.ID,
		DisplayName: doc.StringField("displayName"),
		Email:       doc.StringField("email"),
		AvatarURL:   doc.StringField("avatarUrl"),
		FCMToken:    doc.StringField("fcmToken"),
		CreatedAt:   doc.TimeField("createdAt"),
	}
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type UpdateFCMTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type SearchUsersRequest struct {
	Email string `json:"email" binding:"required,email"`
}
