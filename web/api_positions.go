package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bondrotor/database"
	"bondrotor/utils"
)

// positionView 持仓视图：券商持仓叠加买入记录标识
type positionView struct {
	InstrumentID string  `json:"instrument_id"`
	Name         string  `json:"name"`
	Quantity     int64   `json:"quantity"`
	Available    int64   `json:"available"`
	AverageCost  float64 `json:"average_cost"`
	LastPrice    float64 `json:"last_price"`
	PnLPct       float64 `json:"pnl_pct"`
	// 是否由本系统买入（参与轮动卖出和止盈止损）
	Managed bool `json:"managed"`
}

// getPositions 查询账户持仓
func (s *Server) getPositions(c *gin.Context) {
	ctx := c.Request.Context()

	positions, err := s.gateway.GetPositions(ctx)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "error.broker_unavailable", err.Error())
		return
	}

	managed := map[string]bool{}
	if records, err := s.db.GetPositionRecords(ctx); err == nil {
		for _, r := range records {
			managed[r.InstrumentID] = true
		}
	}

	views := make([]*positionView, 0, len(positions))
	for _, p := range positions {
		v := &positionView{
			InstrumentID: p.InstrumentID,
			Name:         p.Name,
			Quantity:     p.Quantity,
			Available:    p.Available,
			AverageCost:  p.AverageCost,
			LastPrice:    p.LastPrice,
			Managed:      managed[p.InstrumentID],
		}
		if p.AverageCost > 0 && p.LastPrice > 0 {
			v.PnLPct = (p.LastPrice - p.AverageCost) / p.AverageCost
		}
		views = append(views, v)
	}
	respondOK(c, views)
}

// getAsset 查询账户资产
func (s *Server) getAsset(c *gin.Context) {
	asset, err := s.gateway.GetAsset(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "error.broker_unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cash":         asset.Cash,
		"frozen_cash":  asset.FrozenCash,
		"market_value": asset.MarketValue,
		"total_asset":  asset.TotalAsset,
	})
}

// getOrders 查询委托审计记录
func (s *Server) getOrders(c *gin.Context) {
	filter := &database.OrderFilter{
		RunID:        c.Query("run_id"),
		InstrumentID: c.Query("instrument_id"),
		Side:         c.Query("side"),
		Status:       c.Query("status"),
		Limit:        parseIntQuery(c, "limit", 100),
		Offset:       parseIntQuery(c, "offset", 0),
	}
	if t, ok := parseTimeQuery(c, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := parseTimeQuery(c, "end_time"); ok {
		filter.EndTime = &t
	}

	orders, err := s.db.GetOrderRecords(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, orders)
}

// getRefills 查询当日补仓队列
func (s *Server) getRefills(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = utils.TradeDate(utils.NowConfiguredTimezone())
	}
	items, err := s.db.GetPendingRefills(c.Request.Context(), date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.query_failed", err.Error())
		return
	}
	respondOK(c, items)
}
