package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bondrotor/database"
)

// triggerRebalance 手动触发一次调仓
// 执行是同步的，响应返回本次运行的完整结果
func (s *Server) triggerRebalance(c *gin.Context) {
	if s.sched == nil {
		respondError(c, http.StatusServiceUnavailable, "error.trigger_failed")
		return
	}
	summary := s.sched.TriggerNow(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": T(c, "status.rebalance_triggered"),
		"run_id":  summary.RunID,
		"state":   summary.State,
		"filled":  summary.FilledCount(),
		"failed":  summary.FailedCount(),
	})
}

// getRuns 查询调仓执行历史
func (s *Server) getRuns(c *gin.Context) {
	filter := &database.RunFilter{
		Trigger: c.Query("trigger"),
		State:   c.Query("state"),
		Limit:   parseIntQuery(c, "limit", 50),
		Offset:  parseIntQuery(c, "offset", 0),
	}
	if t, ok := parseTimeQuery(c, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := parseTimeQuery(c, "end_time"); ok {
		filter.EndTime = &t
	}

	runs, err := s.db.GetRunRecords(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, runs)
}

// getRunByID 查询单次执行的详情
func (s *Server) getRunByID(c *gin.Context) {
	run, err := s.db.GetRunByID(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	if run == nil {
		respondError(c, http.StatusNotFound, "error.run_not_found")
		return
	}
	respondOK(c, run)
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
