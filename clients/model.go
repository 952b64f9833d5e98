// Package clients persists the agency's client records and their analysis history.
package clients

import (
	"encoding/json"
	"time"

	"github.com/seo-optimizer/insights/models"
)

// Client is a tracked website. Scores and status reflect the latest
// successful analysis; LastAnalysis is nil until one has run.
type Client struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"ownerId"`
	Name         string              `json:"name"`
	Website      string              `json:"website"`
	SEOScore     float64             `json:"seoScore"`
	AIOScore     float64             `json:"aioScore"`
	Status       models.HealthStatus `json:"status,omitempty"`
	LastAnalysis *time.Time          `json:"lastAnalysis,omitempty"`
	LastReport   json.RawMessage     `json:"lastReport,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// HistoryEntry is an append-only snapshot of one analysis of a client.
type HistoryEntry struct {
	ID         string              `json:"id"`
	ClientID   string              `json:"clientId"`
	SEOScore   float64             `json:"seoScore"`
	AIOScore   float64             `json:"aioScore"`
	Status     models.HealthStatus `json:"status"`
	Report     json.RawMessage     `json:"report"`
	RecordedAt time.Time           `json:"recordedAt"`
}

// NewClient is an already-validated client waiting to be stored.
type NewClient struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name" binding:"required"`
	Website string `json:"website" binding:"required"`
}
