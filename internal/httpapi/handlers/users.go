package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/auth"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/models"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

type credentialsReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "valid email and a password of 8 to 72 characters required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	user := models.User{Email: strings.ToLower(strings.TrimSpace(req.Email)), PasswordHash: hash}

	var cnt int64
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.User{}).Where("email = ?", user.Email).Count(&cnt).Error; err != nil {
		failErr(c, err)
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusConflict, string(pipeline.KindValidation), "email already registered")
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		common.Fail(c, http.StatusConflict, string(pipeline.KindValidation), "failed to create user (maybe email already exists)")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"token": token,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password required")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		failErr(c, err)
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, string(pipeline.KindAuthentication), "invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, gin.H{"token": token, "expires_in": int(tokenTTL.Seconds())})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, string(pipeline.KindNotFound), "user not found")
			return
		}
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}
