package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
)

func (s *Server) handleCreateAccount(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req createAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toCore()
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	acc, err := s.registry.CreateAccount(c.Request.Context(), user, in)
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	c.JSON(http.StatusCreated, newAccountView(acc))
}

func (s *Server) handleListAccounts(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	scope, err := queryScope(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	kind, err := queryKind(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	accs, err := s.registry.ListAccounts(c.Request.Context(), user, scope, kind)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	c.JSON(http.StatusOK, newAccountViews(accs))
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := s.registry.DeleteAccount(c.Request.Context(), user, c.Param("id")); err != nil {
		writeError(c, log.OpDelete, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAccountBalance(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	bal, err := s.engine.GetBalance(c.Request.Context(), user, id)
	if err != nil {
		writeError(c, log.OpRead, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "balance": core.FormatAmount(bal)})
}

func (s *Server) handleBalances(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	scope, err := queryScope(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	kind, err := queryKind(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	bs, err := s.registry.Balances(c.Request.Context(), user, scope, kind)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	c.JSON(http.StatusOK, newBalanceViews(bs))
}

func (s *Server) handleOpenLiability(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req liabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toCore()
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	acc, opening, err := s.engine.OpenLiability(c.Request.Context(), user, in)
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	resp := gin.H{"account": newAccountView(acc)}
	if opening != nil {
		resp["opening"] = newDetailView(*opening)
	}
	c.JSON(http.StatusCreated, resp)
}

// handleBootstrap creates the chart of accounts sent in the body, or the
// configured default chart when the body is empty.
func (s *Server) handleBootstrap(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req bootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(c, err)
		return
	}
	templates, err := req.toCore()
	if err != nil {
		writeError(c, log.OpBootstrap, err)
		return
	}
	if len(templates) == 0 {
		templates = s.chart
	}
	created, err := s.registry.Bootstrap(c.Request.Context(), user, templates)
	if err != nil {
		writeError(c, log.OpBootstrap, err)
		return
	}
	c.JSON(http.StatusOK, newAccountViews(created))
}

func (s *Server) handlePaymentDraft(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	draft, err := s.bills.DraftDebtPayment(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, log.OpRead, err)
		return
	}
	c.JSON(http.StatusOK, newDraftView(draft))
}
