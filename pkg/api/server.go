// Package api exposes the HTTP surface: ingestion uploads, ticket
// review, attachment links, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopdesk-io/shopdesk/pkg/broker"
	"github.com/shopdesk-io/shopdesk/pkg/database"
	"github.com/shopdesk-io/shopdesk/pkg/ingest"
	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// Uploader accepts direct API uploads.
type Uploader interface {
	Upload(ctx context.Context, body *string, files []ingest.File) (*ingest.Result, error)
}

// TicketReader serves ticket listings and reply approval.
type TicketReader interface {
	Get(ctx context.Context, id string) (*models.Ticket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error)
	ApproveReply(ctx context.Context, ticketID, reply string) (*models.Event, error)
}

// EventReader serves the per-ticket event history.
type EventReader interface {
	ListByTicket(ctx context.Context, ticketID string) ([]*models.Event, error)
}

// AttachmentReader resolves attachment rows.
type AttachmentReader interface {
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
}

// Presigner mints short-lived download URLs for stored objects.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Commenter pushes approved replies to the external help desk. Failures
// are reported as false and never fail the approval.
type Commenter interface {
	AddPublicComment(ctx context.Context, ticketID, body string) bool
}

// Server holds the handler dependencies.
type Server struct {
	db          *database.Client
	pool        *broker.WorkerPool
	uploads     Uploader
	tickets     TicketReader
	events      EventReader
	attachments AttachmentReader
	presigner   Presigner
	helpDesk    Commenter
	registry    *prometheus.Registry
}

// NewServer creates the API server. helpDesk may be nil; approved replies
// then stay internal.
func NewServer(db *database.Client, pool *broker.WorkerPool, uploads Uploader,
	tickets TicketReader, events EventReader, attachments AttachmentReader,
	presigner Presigner, helpDesk Commenter, registry *prometheus.Registry) *Server {
	return &Server{
		db:          db,
		pool:        pool,
		uploads:     uploads,
		tickets:     tickets,
		events:      events,
		attachments: attachments,
		presigner:   presigner,
		helpDesk:    helpDesk,
		registry:    registry,
	}
}

// Router builds the gin engine with all routes bound.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())

	router.GET("/healthz", s.health)
	if s.registry != nil {
		handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
		router.GET("/metrics", gin.WrapH(handler))
	}

	router.POST("/ingest/upload", s.ingestUpload)
	router.GET("/tickets", s.listTickets)
	router.GET("/tickets/:id", s.getTicket)
	router.POST("/tickets/:id/approve-reply", s.approveReply)
	router.GET("/attachments/:id/url", s.attachmentURL)

	return router
}

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthCheck is one component's health entry.
type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// health handles GET /healthz. Only our own components (database, worker
// pool) are checked; external services are excluded so an upstream outage
// does not get us restarted.
func (s *Server) health(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]healthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		if _, err := database.Health(reqCtx, s.db.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = healthCheck{Status: healthStatusHealthy}
		}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health()
		if poolHealth != nil && !poolHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["worker_pool"] = healthCheck{Status: healthStatusDegraded}
		} else {
			checks["worker_pool"] = healthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
