package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bondrotor/database"
)

// getEvents 查询事件记录
func (s *Server) getEvents(c *gin.Context) {
	filter := &database.EventFilter{
		Type:       c.Query("type"),
		Severity:   c.Query("severity"),
		Instrument: c.Query("instrument"),
		Limit:      parseIntQuery(c, "limit", 100),
		Offset:     parseIntQuery(c, "offset", 0),
	}
	if t, ok := parseTimeQuery(c, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := parseTimeQuery(c, "end_time"); ok {
		filter.EndTime = &t
	}

	events, err := s.db.GetEvents(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, events)
}

// getEventStats 事件统计
func (s *Server) getEventStats(c *gin.Context) {
	stats, err := s.db.GetEventStats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, stats)
}
