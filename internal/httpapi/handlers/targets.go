package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/models"
)

type targetReq struct {
	SiteURL     string `json:"site_url" binding:"required"`
	Username    string `json:"username" binding:"required"`
	AppPassword string `json:"app_password" binding:"required"`
}

func (r *targetReq) model() *models.PublishTarget {
	if r == nil {
		return nil
	}
	return &models.PublishTarget{SiteURL: r.SiteURL, Username: r.Username, AppPassword: r.AppPassword}
}

func targetView(t *models.PublishTarget) gin.H {
	return gin.H{
		"site_url":     t.SiteURL,
		"username":     t.Username,
		"app_password": "********",
		"updated_at":   t.UpdatedAt,
	}
}

func (h *Handler) PutPublishTarget(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req targetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "site_url, username and app_password required")
		return
	}
	t := req.model()
	if err := h.Pipeline.SavePublishTarget(c.Request.Context(), uid, t); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, targetView(t))
}

func (h *Handler) GetPublishTarget(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	t, err := h.Pipeline.PublishTarget(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, targetView(t))
}
