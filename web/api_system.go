package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bondrotor/storage"
)

func (s *Server) metricsStorage() storage.Storage {
	if s.storage == nil {
		return nil
	}
	return s.storage.GetStorage()
}

// getSystemMetrics 查询时间段内的资源占用明细
func (s *Server) getSystemMetrics(c *gin.Context) {
	store := s.metricsStorage()
	if store == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}

	endTime := time.Now().UTC()
	startTime := endTime.Add(-24 * time.Hour)
	if t, ok := parseTimeQuery(c, "start_time"); ok {
		startTime = t
	}
	if t, ok := parseTimeQuery(c, "end_time"); ok {
		endTime = t
	}

	records, err := store.QuerySystemMetrics(startTime, endTime)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, records)
}

// getCurrentSystemMetrics 最近一次资源采样
func (s *Server) getCurrentSystemMetrics(c *gin.Context) {
	store := s.metricsStorage()
	if store == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}
	latest, err := store.GetLatestSystemMetrics()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, latest)
}

// getDailySystemMetrics 按日聚合的资源占用
func (s *Server) getDailySystemMetrics(c *gin.Context) {
	store := s.metricsStorage()
	if store == nil {
		respondError(c, http.StatusServiceUnavailable, "error.storage_disabled")
		return
	}
	days := parseIntQuery(c, "days", 30)
	records, err := store.QueryDailySystemMetrics(days)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, records)
}
