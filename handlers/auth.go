package handlers

import (
	"net/http"
	"strings"

	"chatstatus-backend/models"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Local-auth fallback for deployments without Firebase. These routes are only
// registered when the local store is in use; with Firebase configured,
// clients authenticate against Firebase directly and send ID tokens.

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// POST /auth/register
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := Store.Query(c.Request.Context(), "users", store.Where("email", "==", req.Email))
	if err != nil {
		serviceError(c, err)
		return
	}
	if len(existing) > 0 {
		utils.BadRequest(c, "Email already registered")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.InternalError(c, "Failed to hash password")
		return
	}

	userID := uuid.NewString()
	err = Store.MergeWrite(c.Request.Context(), "users/"+userID, map[string]interface{}{
		"displayName":  req.Name,
		"email":        req.Email,
		"passwordHash": string(hashedPassword),
		"createdAt":    store.ServerNow{},
	})
	if err != nil {
		serviceError(c, err)
		return
	}

	token, err := utils.GenerateToken(userID, req.Name, req.Email)
	if err != nil {
		utils.InternalError(c, "Failed to generate token")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Registration successful", AuthResponse{
		Token: token,
		User:  &models.User{ID: userID, DisplayName: req.Name, Email: req.Email},
	})
}

// POST /auth/login
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	docs, err := Store.Query(c.Request.Context(), "users", store.Where("email", "==", req.Email))
	if err != nil {
		serviceError(c, err)
		return
	}
	if len(docs) == 0 {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	doc := docs[0]
	hash := doc.StringField("passwordHash")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	user := models.UserFromDoc(doc)
	token, err := utils.GenerateToken(user.ID, user.DisplayName, user.Email)
	if err != nil {
		utils.InternalError(c, "Failed to generate token")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Login successful", AuthResponse{
		Token: token,
		User:  user,
	})
}
