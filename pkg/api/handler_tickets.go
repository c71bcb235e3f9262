package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// listTickets handles GET /tickets with optional route, status, and limit
// query filters.
func (s *Server) listTickets(c *gin.Context) {
	filter := models.TicketFilter{
		Route:  c.Query("route"),
		Status: c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	tickets, err := s.tickets.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// ticketDetail is a ticket with its full event history.
type ticketDetail struct {
	*models.Ticket
	Events []*models.Event `json:"events"`
}

// getTicket handles GET /tickets/:id.
func (s *Server) getTicket(c *gin.Context) {
	ticket, err := s.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	events, err := s.events.ListByTicket(c.Request.Context(), ticket.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	c.JSON(http.StatusOK, &ticketDetail{Ticket: ticket, Events: events})
}

// approveReplyRequest is the body of POST /tickets/:id/approve-reply.
type approveReplyRequest struct {
	Reply string `json:"reply" binding:"required"`
}

// approveReply handles POST /tickets/:id/approve-reply: record the
// approval event and best-effort mirror the reply to the help desk.
func (s *Server) approveReply(c *gin.Context) {
	var req approveReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := s.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	event, err := s.tickets.ApproveReply(c.Request.Context(), ticket.ID, req.Reply)
	if err != nil {
		respondError(c, err)
		return
	}

	mirrored := false
	if s.helpDesk != nil && ticket.ExternalID != nil {
		mirrored = s.helpDesk.AddPublicComment(c.Request.Context(), *ticket.ExternalID, req.Reply)
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_id": ticket.ID,
		"event_id":  event.ID,
		"mirrored":  mirrored,
	})
}
