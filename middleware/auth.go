package middleware

import (
	"strings"

	"chatstatus-backend/models"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

// AuthRequired resolves the acting principal from the Authorization header.
// With Firebase configured the bearer token is a Firebase ID token; otherwise
// it is one of our own JWTs from /auth/login. The profile document, when it
// exists, wins over token claims for the display name.
func AuthRequired(authClient *auth.Client, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			utils.Unauthorized(c, "Missing or malformed Authorization header")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		var principal models.Principal
		if authClient != nil {
			token, err := authClient.VerifyIDToken(c.Request.Context(), raw)
			if err != nil {
				utils.Unauthorized(c, "Invalid ID token")
				c.Abort()
				return
			}
			principal.ID = token.UID
			if name, ok := token.Claims["name"].(string); ok {
				principal.DisplayName = name
			}
			if email, ok := token.Claims["email"].(string); ok {
				principal.Email = email
			}
		} else {
			claims, err := utils.ParseToken(raw)
			if err != nil {
				utils.Unauthorized(c, "Invalid or expired token")
				c.Abort()
				return
			}
			principal = models.Principal{
				ID:          claims.Subject,
				DisplayName: claims.Name,
				Email:       claims.Email,
			}
		}

		if doc, err := st.Get(c.Request.Context(), "users/"+principal.ID); err == nil {
			if name := doc.StringField("displayName"); name != "" {
				principal.DisplayName = name
			}
			if email := doc.StringField("email"); email != "" {
				principal.Email = email
			}
		}

		c.Set("principal", principal)
		c.Next()
	}
}
