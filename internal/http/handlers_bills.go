package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/log"
)

func (s *Server) handleCreateBill(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req createBillRequest
	if !bindJSON(c, &req) {
		return
	}
	in, err := req.toCore()
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	bill, err := s.bills.CreateBill(c.Request.Context(), user, in)
	if err != nil {
		writeError(c, log.OpPost, err)
		return
	}
	c.JSON(http.StatusCreated, newBillView(bill))
}

func (s *Server) handleListBills(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	scope, err := queryScope(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	bills, err := s.bills.ListBills(c.Request.Context(), user, scope)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	out := make([]billView, 0, len(bills))
	for _, b := range bills {
		out = append(out, newBillView(b))
	}
	c.JSON(http.StatusOK, out)
}

// handleDueBills lists the bills of a month with their pay status,
// defaulting to the current month.
func (s *Server) handleDueBills(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	scope, err := queryScope(c)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	year, month, err := queryYearMonth(c, s.now())
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	due, err := s.bills.DueBills(c.Request.Context(), user, scope, year, month)
	if err != nil {
		writeError(c, log.OpList, err)
		return
	}
	out := make([]dueBillView, 0, len(due))
	for _, d := range due {
		out = append(out, dueBillView{billView: newBillView(d.Bill), DueDate: d.DueDate.String(), Status: string(d.Status)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteBill(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := s.bills.DeleteBill(c.Request.Context(), user, c.Param("id")); err != nil {
		writeError(c, log.OpDelete, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBillDraft(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	draft, err := s.bills.DraftFromBill(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		writeError(c, log.OpRead, err)
		return
	}
	c.JSON(http.StatusOK, newDraftView(draft))
}
