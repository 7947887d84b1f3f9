package handler

import (
	"net/http"
	"time"

	"currencyapi/config"
	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues admin tokens for the job endpoints
type AuthHandler struct {
	cfg config.JWTConfig
}

func NewAuthHandler(cfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Enabled login needs both a signing secret and a password hash
func (h *AuthHandler) Enabled() bool {
	return h.cfg.Secret != "" && h.cfg.AdminPasswordHash != ""
}

// Token exchanges admin credentials for a bearer token
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, "body", err)
		return
	}

	if req.Username != h.cfg.AdminUser || !util.CheckPassword(req.Password, h.cfg.AdminPasswordHash) {
		util.Unauthorized(c, "Incorrect username or password")
		return
	}

	token, expires, err := util.IssueAdminToken(h.cfg.Secret, req.Username, time.Duration(h.cfg.ExpireHours)*time.Hour)
	if err != nil {
		util.ServerError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expires.Unix(),
	})
}
