package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/web"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the book resource. Writes are additionally wrapped in requireStaff.
func RegisterRoutes(r gin.IRoutes, svc *Service, requireStaff gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.GET("/books", h.ListBooks)
	r.GET("/books/:id", h.GetBook)
	r.POST("/books", requireStaff, h.CreateBook)
	r.PUT("/books/:id", requireStaff, h.UpdateBook)
	r.PATCH("/books/:id", requireStaff, h.UpdateBook)
	r.DELETE("/books/:id", requireStaff, h.DeleteBook)
}

// ---------- handlers ----------

func (h *Handler) ListBooks(c *gin.Context) {
	f := BookFilter{
		Title:  c.Query("title"),
		Author: c.Query("author"),
		ISBN:   c.Query("isbn"),
		Search: c.Query("search"),
	}
	if v := c.Query("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			web.BadRequest(c, "available must be true or false")
			return
		}
		f.Available = &b
	}
	if v := c.Query("copies_available"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			web.BadRequest(c, "copies_available must be a number")
			return
		}
		f.CopiesAvailable = &n
	}

	res, err := h.svc.ListBooks(c.Request.Context(), f, web.PageFromQuery(c))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetBook(c *gin.Context) {
	res, err := h.svc.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.BadRequest(c, "invalid json or missing required fields")
		return
	}
	res, err := h.svc.CreateBook(c.Request.Context(), req)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.Header("Location", "/books/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpdateBook(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.UpdateBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteBook(c *gin.Context) {
	if err := h.svc.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		web.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
