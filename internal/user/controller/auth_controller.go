package controller

import (
	"time"

	"codearena/internal/user/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthController handles authentication HTTP endpoints.
type AuthController struct {
	authService *service.AuthService
}

// NewAuthController creates a new AuthController.
func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

// Register handles user registration.
func (h *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAuthResponse(result))
}

// Login handles user login.
func (h *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAuthResponse(result))
}

// Logout revokes the caller's access token.
func (h *AuthController) Logout(c *gin.Context) {
	token := c.GetString("auth_token")
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Profile returns the caller's profile.
func (h *AuthController) Profile(c *gin.Context) {
	userID := c.GetInt64("auth_user_id")
	info, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, UserResponse{
		ID:       info.ID,
		Username: info.Username,
		Email:    info.Email,
		Role:     string(info.Role),
	})
}

// DeleteAccount removes the caller's account.
func (h *AuthController) DeleteAccount(c *gin.Context) {
	userID := c.GetInt64("auth_user_id")
	token := c.GetString("auth_token")
	if err := h.authService.DeleteAccount(c.Request.Context(), userID, token); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func toAuthResponse(result service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt.UTC().Format(time.RFC3339),
		User: UserResponse{
			ID:       result.User.ID,
			Username: result.User.Username,
			Email:    result.User.Email,
			Role:     string(result.User.Role),
		},
	}
}

// RegisterRequest defines registration payload.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest defines login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse defines register/login response payload.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   string       `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// UserResponse defines user info payload.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}
