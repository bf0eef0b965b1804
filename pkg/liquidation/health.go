// 文件: pkg/liquidation/health.go
// 健康度评估 - 纯计算, 无副作用
//
// 这是整个风控系统的数学核心:
// 输入 (仓位 + 当前标记价 + 分类风险参数) → 输出 (uPnL / 健康度 / 强平价)。
// 无内部状态, 可被任意多个 Goroutine 并发调用。

package liquidation

import (
	"errors"
	"fmt"

	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrInvalidPosition 退化仓位数据 (零/负的数量、价格或保证金)
	// 调用方应跳过并大声记日志, 绝不允许对畸形数据静默强平
	ErrInvalidPosition = errors.New("invalid position for health evaluation")
)

// =============================================================================
// Health - 评估结果
// =============================================================================

// Health 单仓位健康度评估结果
type Health struct {
	UnrealizedPnl          float64 // 未实现盈亏
	Equity                 float64 // 权益 = 保证金 + uPnL
	MaintenanceRequirement float64 // 维持保证金需求 = 开仓价 × 数量 × MMR
	HealthFactor           float64 // 权益 / 维持保证金需求
	LiquidationPrice       float64 // 理论强平价
	Notional               float64 // 名义价值 = 当前价 × 数量
}

// Liquidatable 健康度 <= 1.0 即具备强平资格
func (h Health) Liquidatable() bool {
	return h.HealthFactor <= LiquidationThreshold
}

// =============================================================================
// Evaluate - 核心计算
// =============================================================================

// Evaluate 计算仓位当前健康度
//
// 【两侧线性保证金模型】
// 1. uPnL: 多头 (cur-entry)×size, 空头 (entry-cur)×size
// 2. 权益 = 保证金 + uPnL
// 3. 维持需求 = entry × size × MMR
// 4. 健康度 = 权益 / 维持需求; > 1.0 代表权益覆盖维持线
// 5. 强平价: 多头 entry×(1 - MMR×lev), 空头 entry×(1 + MMR×lev)
//
// 【策略决定】多头强平价下限钳到 0:
// 低杠杆多头的公式值可能为负, 价格不存在负数,
// 钳 0 表示 "该仓位价格路径上不可能因维持保证金被强平"。
func Evaluate(pos *position.Position, params riskparam.RiskParameters) (Health, error) {
	if pos.Size <= 0 || pos.EntryPrice <= 0 || pos.Margin <= 0 || pos.Leverage < 1 {
		return Health{}, fmt.Errorf("%w: id=%s size=%v entry=%v margin=%v lev=%d",
			ErrInvalidPosition, pos.ID, pos.Size, pos.EntryPrice, pos.Margin, pos.Leverage)
	}
	if pos.CurrentPrice <= 0 {
		return Health{}, fmt.Errorf("%w: id=%s currentPrice=%v",
			ErrInvalidPosition, pos.ID, pos.CurrentPrice)
	}

	var upnl float64
	if pos.Side == position.SideLong {
		upnl = (pos.CurrentPrice - pos.EntryPrice) * pos.Size
	} else {
		upnl = (pos.EntryPrice - pos.CurrentPrice) * pos.Size
	}

	equity := pos.Margin + upnl
	maintReq := pos.EntryPrice * pos.Size * params.MaintenanceMarginRatio
	if maintReq <= 0 {
		// Size/EntryPrice 已校验为正, 走到这里意味着 MMR 配置非法
		return Health{}, fmt.Errorf("%w: id=%s maintenance requirement %v",
			ErrInvalidPosition, pos.ID, maintReq)
	}

	var liqPrice float64
	if pos.Side == position.SideLong {
		liqPrice = pos.EntryPrice * (1 - params.MaintenanceMarginRatio*float64(pos.Leverage))
		if liqPrice < 0 {
			liqPrice = 0
		}
	} else {
		liqPrice = pos.EntryPrice * (1 + params.MaintenanceMarginRatio*float64(pos.Leverage))
	}

	return Health{
		UnrealizedPnl:          upnl,
		Equity:                 equity,
		MaintenanceRequirement: maintReq,
		HealthFactor:           equity / maintReq,
		LiquidationPrice:       liqPrice,
		Notional:               pos.CurrentPrice * pos.Size,
	}, nil
}

// =============================================================================
// HealthReport - 对外查询载荷
// =============================================================================

// HealthReport getPositionHealth 的响应结构
type HealthReport struct {
	TotalCollateral      float64 `json:"totalCollateral"` // 已缴保证金
	TotalMargin          float64 `json:"totalMargin"`     // 维持保证金需求
	UnrealizedPnl        float64 `json:"unrealizedPnl"`
	HealthFactor         float64 `json:"healthFactor"`
	IsLiquidatable       bool    `json:"isLiquidatable"`
	MarginCallThreshold  float64 `json:"marginCallThreshold"`
	LiquidationThreshold float64 `json:"liquidationThreshold"`
}

// NewHealthReport 由评估结果构建查询载荷
func NewHealthReport(pos *position.Position, h Health) *HealthReport {
	return &HealthReport{
		TotalCollateral:      pos.Margin,
		TotalMargin:          h.MaintenanceRequirement,
		UnrealizedPnl:        h.UnrealizedPnl,
		HealthFactor:         h.HealthFactor,
		IsLiquidatable:       h.Liquidatable(),
		MarginCallThreshold:  MarginCallThreshold,
		LiquidationThreshold: LiquidationThreshold,
	}
}
