package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// getStrategies 查询策略平台上的策略列表（只读运营接口）
func (s *Server) getStrategies(c *gin.Context) {
	strategies, err := s.src.GetStrategies(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "error.source_unavailable", err.Error())
		return
	}
	respondOK(c, strategies)
}

// getHistories 查询策略的回测历史
func (s *Server) getHistories(c *gin.Context) {
	strategyID, err := strconv.Atoi(c.Param("id"))
	if err != nil || strategyID <= 0 {
		respondError(c, http.StatusBadRequest, "error.invalid_params")
		return
	}
	histories, err := s.src.GetHistories(c.Request.Context(), strategyID)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "error.source_unavailable", err.Error())
		return
	}
	respondOK(c, histories)
}
