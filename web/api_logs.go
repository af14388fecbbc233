package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bondrotor/storage"
)

func (s *Server) logStorage() *storage.LogStorage {
	if s.storage == nil {
		return nil
	}
	return s.storage.GetLogStorage()
}

// getLogs 查询应用日志
func (s *Server) getLogs(c *gin.Context) {
	ls := s.logStorage()
	if ls == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}

	params := storage.LogQueryParams{
		Level:   c.Query("level"),
		Keyword: c.Query("keyword"),
		Limit:   parseIntQuery(c, "limit", 100),
		Offset:  parseIntQuery(c, "offset", 0),
	}
	if t, ok := parseTimeQuery(c, "start_time"); ok {
		params.StartTime = t
	}
	if t, ok := parseTimeQuery(c, "end_time"); ok {
		params.EndTime = t
	}

	logs, total, err := ls.GetLogs(params)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs, "total": total})
}

// getLogStats 日志统计
func (s *Server) getLogStats(c *gin.Context) {
	ls := s.logStorage()
	if ls == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}
	stats, err := ls.GetLogStats()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, stats)
}

// cleanLogs 清理历史日志
func (s *Server) cleanLogs(c *gin.Context) {
	ls := s.logStorage()
	if ls == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}
	days := parseIntQuery(c, "days", 30)
	if err := ls.CleanOldLogs(days); err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": T(c, "status.logs_cleaned")})
}
