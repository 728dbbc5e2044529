package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/core/service"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
)

// HTTPHandler adapts the chat surface's events onto the core services.
// The chat bot delivers image submissions and edit/confirm/cancel commands
// here and renders whatever comes back; no presentation logic lives below
// this layer.
type HTTPHandler struct {
	sessions *service.SessionService
	audits   *service.AuditService
	crafts   *service.CraftService
	ledger   *service.LedgerService
	log      *logger.Logger
}

func NewHTTPHandler(
	sessions *service.SessionService,
	audits *service.AuditService,
	crafts *service.CraftService,
	ledger *service.LedgerService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		sessions: sessions,
		audits:   audits,
		crafts:   crafts,
		ledger:   ledger,
		log:      log.With("component", "http"),
	}
}

func (h *HTTPHandler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/submissions", h.SubmitImage)
	api.POST("/sessions/:id/edit", h.EditSession)
	api.POST("/sessions/:id/confirm", h.ConfirmSession)
	api.POST("/sessions/:id/cancel", h.CancelSession)
	api.POST("/audits/chunks", h.SubmitAuditChunk)
	api.POST("/audits/finalize", h.FinalizeAudit)
	api.POST("/craft", h.Craft)
	api.GET("/bank", h.BankTotals)
	api.GET("/audit-log", h.AuditLog)
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type submitImageRequest struct {
	ActorID     string `json:"actor_id" binding:"required"`
	ImageBase64 string `json:"image_base64" binding:"required"`
}

func (h *HTTPHandler) SubmitImage(c *gin.Context) {
	var req submitImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	img, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
		return
	}

	sess, err := h.sessions.SubmitImage(c.Request.Context(), req.ActorID, img)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

type editRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (h *HTTPHandler) EditSession(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, err := h.sessions.Edit(c.Request.Context(), c.Param("id"), req.Field, req.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *HTTPHandler) ConfirmSession(c *gin.Context) {
	entry, next, err := h.sessions.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		if entry != nil {
			// the confirmation applied but the queued remainder was lost;
			// the actor needs to resubmit the image for the rest
			c.JSON(http.StatusOK, gin.H{
				"audit_entry": entry,
				"warning":     "remaining items could not be queued, resubmit the image for the rest",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	resp := gin.H{"audit_entry": entry}
	if next != nil {
		resp["session"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) CancelSession(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type auditChunkRequest struct {
	ActorID string            `json:"actor_id" binding:"required"`
	Lines   []domain.ItemLine `json:"lines" binding:"required"`
}

func (h *HTTPHandler) SubmitAuditChunk(c *gin.Context) {
	var req auditChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.audits.SubmitChunk(c.Request.Context(), req.ActorID, req.Lines); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "staged"})
}

type finalizeAuditRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
}

func (h *HTTPHandler) FinalizeAudit(c *gin.Context) {
	var req finalizeAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	txs, err := h.audits.Finalize(c.Request.Context(), req.ActorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type craftRequest struct {
	ActorID    string            `json:"actor_id" binding:"required"`
	Materials  []domain.ItemLine `json:"materials" binding:"required"`
	Outputs    []domain.ItemLine `json:"outputs"`
	Processing bool              `json:"processing"`
}

func (h *HTTPHandler) Craft(c *gin.Context) {
	var req craftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	txs, err := h.crafts.Craft(c.Request.Context(), req.ActorID, req.Materials, req.Outputs, req.Processing)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *HTTPHandler) BankTotals(c *gin.Context) {
	totals, err := h.ledger.GroupTotals(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	type row struct {
		ItemID   string         `json:"item_id"`
		Quality  domain.Quality `json:"quality"`
		Quantity int            `json:"quantity"`
	}
	out := make([]row, 0, len(totals))
	for key, qty := range totals {
		out = append(out, row{ItemID: key.ItemID, Quality: key.Quality, Quantity: qty})
	}
	c.JSON(http.StatusOK, gin.H{"totals": out})
}

func (h *HTTPHandler) AuditLog(c *gin.Context) {
	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}
	entries, err := h.ledger.AuditEntries(c.Request.Context(), c.Query("actor"), since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFieldValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrExtractionFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIncompleteCandidate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoAuditPending):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNegativeInventory):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("internal error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
