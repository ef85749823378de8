package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type eventsQuery struct {
	Limit int `form:"limit"`
}

func (q *eventsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

// getMonitorSnapshot returns the latest state summary C24's SnapshotWriter
// upserted for :variant. The payload is already JSON (monitor.SnapshotPayload
// marshaled by the writer), so it's re-emitted as raw JSON rather than
// round-tripped through a Go struct.
func (s *Server) getMonitorSnapshot(c *gin.Context) {
	variant := c.Param("variant")
	payload, updatedAt, err := s.Repo.LatestSnapshot(variant, s.InstanceID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_SNAPSHOT", "error": "no snapshot recorded for this variant"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/json")
	c.String(http.StatusOK, `{"updated_at":%q,"snapshot":%s}`, updatedAt.Format("2006-01-02T15:04:05Z07:00"), payload)
}

// getMonitorEvents returns up to ?limit (default 50, max 500) recorded
// events for :variant, newest first.
func (s *Server) getMonitorEvents(c *gin.Context) {
	variant := c.Param("variant")
	var q eventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_QUERY", "error": err.Error()})
		return
	}
	q.normalize()

	rows, err := s.Repo.Events(variant, s.InstanceID, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		var payload any
		if err := json.Unmarshal([]byte(row.PayloadJSON), &payload); err != nil {
			payload = row.PayloadJSON
		}
		out = append(out, gin.H{
			"vt_symbol":  row.VtSymbol,
			"event_type": row.EventType,
			"payload":    payload,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"variant": variant, "events": out})
}

// flattenPosition is the facade's one manual-override call: it forces a
// full close of :vt_symbol through the strategy engine's normal
// sizing/dispatch pipeline (strategy.Engine.FlattenPosition), bypassing
// the close signal check but not the executor's order tracking.
func (s *Server) flattenPosition(c *gin.Context) {
	vtSymbol := c.Param("vt_symbol")
	if vtSymbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_SYMBOL", "error": "vt_symbol is required"})
		return
	}
	if s.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "ENGINE_UNAVAILABLE", "error": "strategy engine not wired"})
		return
	}

	if err := s.Engine.FlattenPosition(vtSymbol); err != nil {
		c.JSON(http.StatusConflict, gin.H{"code": "FLATTEN_FAILED", "error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"vt_symbol": vtSymbol, "status": "flatten_submitted"})
}
