// Package api serves the analysis pipeline and client records over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/analyzer"
	"github.com/seo-optimizer/insights/batch"
	"github.com/seo-optimizer/insights/clients"
	"github.com/seo-optimizer/insights/credentials"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/stats"
)

// UserHeader carries the caller's id; credentials are looked up for it.
const UserHeader = "X-User-ID"

// AnalysisService is the single-URL pipeline plus its cache controls.
type AnalysisService interface {
	Analyze(ctx context.Context, req analyzer.AnalysisRequest) (*models.CombinedAnalysisResult, error)
	ClearCache(ctx context.Context, prefix string) int
	CacheStats() analyzer.CacheStats
}

type BulkRunner interface {
	AnalyzeBulk(ctx context.Context, ids []string) (*batch.Run, error)
}

// CredentialWriter registers a user's key for a provider.
type CredentialWriter interface {
	Save(ctx context.Context, id, userID string, provider credentials.Provider, apiKey string) error
}

type StatsReader interface {
	GetCurrentStats() stats.MonthlyStats
	GetAllMonths() []string
}

// Handler holds the dependencies of every route.
type Handler struct {
	Analysis AnalysisService
	Clients  clients.Repo
	Bulk     BulkRunner
	Keys     CredentialWriter
	Stats    StatsReader
	Logger   logrus.FieldLogger
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzer.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL provided"})
		return
	}
	req.UserID = c.GetHeader(UserHeader)

	res, err := h.Analysis.Analyze(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listClients(c *gin.Context) {
	all, err := h.Clients.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": all})
}

type importRequest struct {
	Clients []clients.NewClient `json:"clients" binding:"required,min=1,dive"`
}

func (h *Handler) importClients(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a non-empty list of clients with name and website"})
		return
	}
	owner := c.GetHeader(UserHeader)
	for i := range req.Clients {
		if req.Clients[i].OwnerID == "" {
			req.Clients[i].OwnerID = owner
		}
	}

	stored, err := clients.Import(c.Request.Context(), h.Clients, req.Clients)
	if err != nil {
		var pe *models.PersistenceError
		status := http.StatusBadRequest
		if errors.As(err, &pe) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error(), "imported": stored})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"clients": stored})
}

func (h *Handler) getClient(c *gin.Context) {
	ctx := c.Request.Context()
	client, err := h.Clients.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("history", "10"))
	history, err := h.Clients.History(ctx, client.ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client, "history": history})
}

type bulkRequest struct {
	ClientIDs []string `json:"clientIds" binding:"required,min=1"`
}

func (h *Handler) analyzeClients(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a non-empty clientIds list"})
		return
	}
	run, err := h.Bulk.AnalyzeBulk(c.Request.Context(), req.ClientIDs)
	if run == nil {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.Logger.WithError(err).WithField("run_id", run.ID).Warn("bulk run interrupted")
	}
	c.JSON(http.StatusOK, run)
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

// saveCredential stores the caller's key. An empty key removes it from the
// in-memory store and is rejected by the database-backed one.
func (h *Handler) saveCredential(c *gin.Context) {
	userID := c.GetHeader(UserHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserHeader + " header"})
		return
	}
	provider, ok := credentials.ParseProvider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.Keys.Save(c.Request.Context(), uuid.NewString(), userID, provider, strings.TrimSpace(req.APIKey)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCache(c *gin.Context) {
	prefix := strings.TrimSpace(c.Query("prefix"))
	removed := h.Analysis.ClearCache(c.Request.Context(), prefix)
	c.JSON(http.StatusOK, gin.H{"removed": removed, "prefix": prefix})
}

func (h *Handler) statistics(c *gin.Context) {
	out := gin.H{"cache": h.Analysis.CacheStats()}
	if h.Stats != nil {
		out["currentMonth"] = h.Stats.GetCurrentStats()
		out["months"] = h.Stats.GetAllMonths()
	}
	c.JSON(http.StatusOK, out)
}

// fail maps pipeline and repository errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown error"})
	case errors.Is(err, models.ErrInvalidURL), errors.Is(err, models.ErrInvalidStrategy):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, context.Canceled):
		c.JSON(499, gin.H{"error": "request cancelled"})
	default:
		h.Logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
	}
}
