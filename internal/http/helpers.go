package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/middleware/auth"
)

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// actor returns the authenticated member. Routes behind the auth
// middleware always have one; a missing actor aborts with 401.
func actor(c *gin.Context) (core.UserID, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	}
	return id, ok
}

// bindJSON decodes the body, answering 400 when it is not valid JSON.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeBadRequest(c, err)
		return false
	}
	return true
}
