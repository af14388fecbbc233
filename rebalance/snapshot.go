package rebalance

import (
	"context"

	"bondrotor/broker"
	"bondrotor/database"
	"bondrotor/logger"
	"bondrotor/metrics"
)

// Snapshotter 持仓快照采集器
// 人工买入的持仓不在买入记录中，不会被纳入卖出范围
type Snapshotter struct {
	gateway broker.Gateway
	db      database.Database
	clock   Clock
}

// NewSnapshotter 创建快照采集器
// db 为 nil 时不做托管过滤，账户全部持仓都视为托管持仓
func NewSnapshotter(gateway broker.Gateway, db database.Database, clock Clock) *Snapshotter {
	if clock == nil {
		clock = RealClock()
	}
	return &Snapshotter{gateway: gateway, db: db, clock: clock}
}

// Take 采集一份新的持仓快照
func (s *Snapshotter) Take(ctx context.Context) (*Snapshot, error) {
	positions, err := s.gateway.GetPositions(ctx)
	if err != nil {
		return nil, NewRunError(KindGatewayError, "", "查询持仓失败: %v", err)
	}

	asset, err := s.gateway.GetAsset(ctx)
	if err != nil {
		return nil, NewRunError(KindGatewayError, "", "查询资产失败: %v", err)
	}

	snap := &Snapshot{
		Cash:      asset.Cash,
		AllHeld:   make(map[string]bool, len(positions)),
		Suspended: make(map[string]bool),
		TakenAt:   s.clock.Now(),
	}
	for _, pos := range positions {
		snap.AllHeld[pos.InstrumentID] = true
	}

	// 只有系统买入过的标的才纳入调仓管理
	managed := positions
	if s.db != nil {
		records, err := s.db.GetPositionRecords(ctx)
		if err != nil {
			return nil, NewRunError(KindGatewayError, "", "查询买入记录失败: %v", err)
		}
		recorded := make(map[string]bool, len(records))
		for _, r := range records {
			recorded[r.InstrumentID] = true
		}
		managed = managed[:0:0]
		for _, pos := range positions {
			if recorded[pos.InstrumentID] {
				managed = append(managed, pos)
			}
		}
	}
	snap.Positions = managed

	// 停牌状态在快照阶段查询，规划阶段保持纯函数
	for _, pos := range snap.Positions {
		suspended, err := s.gateway.IsSuspended(ctx, pos.InstrumentID)
		if err != nil {
			logger.Warn("⚠️ 查询 %s 停牌状态失败，按可交易处理: %v", pos.InstrumentID, err)
			continue
		}
		snap.Suspended[pos.InstrumentID] = suspended
	}

	pm := metrics.GetPrometheusMetrics()
	pm.SetPositionCount(len(snap.Positions))
	pm.SetCashBalance(snap.Cash)
	for _, pos := range snap.Positions {
		if pos.AverageCost > 0 && pos.LastPrice > 0 {
			pm.SetPositionPnL(pos.InstrumentID, (pos.LastPrice-pos.AverageCost)/pos.AverageCost)
		}
	}

	return snap, nil
}
