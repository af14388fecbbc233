package web

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// getStatus 系统总体状态
func (s *Server) getStatus(c *gin.Context) {
	ctx := c.Request.Context()

	status := gin.H{
		"app":        s.cfg.App.Name,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	}

	if s.gateway != nil {
		status["broker"] = gin.H{
			"name":      s.gateway.GetName(),
			"connected": s.gateway.IsConnected(ctx),
		}
	}

	if s.sched != nil {
		next := s.sched.NextRebalance()
		if !next.IsZero() {
			status["next_rebalance"] = next.Format(time.RFC3339)
		}
	}

	status["strategy_id"] = s.cfg.Source.StrategyID
	status["schedule"] = gin.H{
		"frequency": s.cfg.Rebalance.Schedule.Frequency,
		"at":        s.cfg.Rebalance.Schedule.At,
	}

	c.JSON(http.StatusOK, status)
}
