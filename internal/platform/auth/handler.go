package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/web"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/token", h.Obtain)
	r.POST("/token/refresh", h.Refresh)
	r.POST("/token/verify", h.Verify)
}

type ObtainRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) Obtain(c *gin.Context) {
	var req ObtainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.BadRequest(c, "username and password are required")
		return
	}
	pair, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.BadRequest(c, "refresh is required")
		return
	}
	access, err := h.svc.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.BadRequest(c, "token is required")
		return
	}
	if err := h.svc.Verify(req.Token); err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
