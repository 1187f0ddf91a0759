// Package web holds the small gin helpers shared by the resource handlers.
package web

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/logging"
)

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Normalize clamps limit/offset and canonicalises order to ASC/DESC.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if strings.ToLower(p.Order) == "asc" {
		p.Order = "ASC"
	} else {
		p.Order = "DESC"
	}
	return p
}

func (p Page) NextOffset(total int64) int {
	n := p.Offset + p.Limit
	if n >= int(total) {
		return 0 // 0=終端
	}
	return n
}

func PageFromQuery(c *gin.Context) Page {
	return Page{
		Limit:  AtoiDef(c.Query("limit"), DefaultLimit),
		Offset: AtoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
}

func AtoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

// Fail writes err as the standard error body. Server-side failures are logged.
func Fail(c *gin.Context, err error) {
	status := apperr.ToHTTPStatus(err)
	if status >= 500 {
		logging.FromGin(c).WithError(err).Error("request failed")
	}
	c.JSON(status, apperr.Body(err))
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(400, apperr.NewBody(apperr.CodeInvalidArgument, msg))
}
