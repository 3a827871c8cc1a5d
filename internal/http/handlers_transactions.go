package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
)

func (s *Server) handlePost(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req postingRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toCore()
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	detail, err := s.engine.Post(c.Request.Context(), user, in)
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	c.JSON(http.StatusCreated, newDetailView(detail))
}

func (s *Server) handleListTransactions(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	scope, err := queryScope(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	txs, err := s.engine.ListTransactions(c.Request.Context(), user, scope, limit)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionView(tx))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	detail, err := s.engine.GetTransaction(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, log.OpRead, err)
		return
	}
	c.JSON(http.StatusOK, newDetailView(detail))
}

func (s *Server) handleUpdateTransaction(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req updateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	upd, err := req.toCore()
	if err != nil {
		writeError(c, log.OpUpdate, err)
		return
	}
	if upd.Empty() {
		writeError(c, log.OpUpdate, core.NewValidationError("", "nothing to update"))
		return
	}
	detail, err := s.engine.UpdateTransaction(c.Request.Context(), user, c.Param("id"), upd)
	if err != nil {
		writeError(c, log.OpUpdate, err)
		return
	}
	c.JSON(http.StatusOK, newDetailView(detail))
}

func (s *Server) handleDeleteTransaction(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := s.engine.DeleteTransaction(c.Request.Context(), user, c.Param("id")); err != nil {
		writeError(c, log.OpDelete, err)
		return
	}
	c.Status(http.StatusNoContent)
}
