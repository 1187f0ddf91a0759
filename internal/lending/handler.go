package lending

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/auth"
	"library-backend/internal/platform/web"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the lending actions and the read-only transaction views.
// The group must already run auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/books/:id/checkout", h.Checkout)
	r.POST("/books/:id/return", h.Return)
	r.GET("/users/:id/borrowing-history", auth.RequireSelfOrStaff("id"), h.History)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
}

func (h *Handler) Checkout(c *gin.Context) {
	res, err := h.svc.Checkout(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Return(c *gin.Context) {
	res, err := h.svc.Return(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c *gin.Context) {
	res, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	res, err := h.svc.ListMine(c.Request.Context(), auth.UserID(c), web.PageFromQuery(c))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	res, err := h.svc.GetMine(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
