// Package handlers implements spec §6's inbound HTTP contract with gin,
// grounded on handlers/petition_handler.go's
// bind-JSON/call-service/map-error-to-status shape.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/service"
	"github.com/euria/council-engine/workflow"
)

// AssessmentHandler exposes create_assessment, stream_assessment, review,
// get_assessment, get_status, get_report, and list over HTTP.
type AssessmentHandler struct {
	svc *service.EngineService
}

func NewAssessmentHandler(svc *service.EngineService) *AssessmentHandler {
	return &AssessmentHandler{svc: svc}
}

type createAssessmentRequest struct {
	ProposalText    string                 `json:"proposal_text" binding:"required"`
	ContextMetadata map[string]interface{} `json:"context_metadata"`
}

// CreateAssessment handles POST /assessments.
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	var req createAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.svc.CreateAssessment(c.Request.Context(), req.ProposalText, models.ContextMetadata(req.ContextMetadata))
	if err != nil {
		var validationErr *workflow.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"input_received": validationErr.InputReceived,
				"guidance":       validationErr.Guidance,
				"examples":       validationErr.Examples,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, a)
}

// StreamAssessment handles GET /assessments/:id/stream, emitting each
// workflow.Event as a server-sent event (spec §6 stream_assessment).
func (h *AssessmentHandler) StreamAssessment(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, unsubscribe := h.svc.StreamAssessment(id)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return ev.Type != workflow.EventWorkflowComplete
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type reviewRequest struct {
	ReviewType models.ReviewType   `json:"review_type" binding:"required"`
	Action     models.ReviewAction `json:"action" binding:"required"`
	ReviewerID string              `json:"reviewer_id" binding:"required"`
	Comments   string              `json:"comments"`
}

// Review handles POST /assessments/:id/review.
func (h *AssessmentHandler) Review(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.svc.Review(c.Request.Context(), id, req.ReviewType, req.Action, req.ReviewerID, req.Comments)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrAssessmentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, workflow.ErrNotAwaitingReview), errors.Is(err, workflow.ErrUnknownReviewAction):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetAssessment handles GET /assessments/:id.
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.svc.GetAssessment(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetStatus handles GET /assessments/:id/status.
func (h *AssessmentHandler) GetStatus(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := h.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetReport handles GET /assessments/:id/report.
func (h *AssessmentHandler) GetReport(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.svc.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrReportNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// List handles GET /assessments?status=.
func (h *AssessmentHandler) List(c *gin.Context) {
	status := models.AssessmentState(c.Query("status"))
	assessments, err := h.svc.List(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assessments)
}

// Cancel handles POST /assessments/:id/cancel.
func (h *AssessmentHandler) Cancel(c *gin.Context) {
	id, err := parseAssessmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.svc.Cancel(id)
	c.JSON(http.StatusAccepted, gin.H{"assessment_id": id})
}

func parseAssessmentID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}
