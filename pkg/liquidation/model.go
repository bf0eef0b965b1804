// 文件: pkg/liquidation/model.go
// 强平候选/事件数据结构与紧急度分级

package liquidation

import (
	"errors"

	"cmx.com/pkg/position"
)

// =============================================================================
// 风险阈值常量
// =============================================================================

const (
	// LiquidationThreshold 强平阈值: 健康度 <= 1.0 即可被强平
	LiquidationThreshold = 1.0

	// MarginCallThreshold 追保阈值: 健康度 <= 1.2 仅提示, 不触发动作
	MarginCallThreshold = 1.2

	// DefaultWatchlistThreshold 观察名单阈值 (与强平阈值区分)
	DefaultWatchlistThreshold = 1.5

	// BaseVolatilityPerSecond 基准每秒波动率
	// 仅用于 timeToLiquidation 估算, 无标定依据, 不参与任何强平判定
	BaseVolatilityPerSecond = 0.001
)

// =============================================================================
// 紧急度分级
// =============================================================================

// Urgency 强平紧急度
//
// 由健康度离散化而来, 决定同一周期内的处理顺序:
// 健康度越低, 越先被执行器消化。
type Urgency int8

const (
	UrgencyLow      Urgency = iota + 1 // 0.9 < hf <= 1.0
	UrgencyMedium                      // 0.7 < hf <= 0.9
	UrgencyHigh                        // 0.5 < hf <= 0.7
	UrgencyCritical                    // hf <= 0.5
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON 输出小写字符串, 与下游 API 约定一致
func (u Urgency) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON 解析小写字符串
func (u *Urgency) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"low"`:
		*u = UrgencyLow
	case `"medium"`:
		*u = UrgencyMedium
	case `"high"`:
		*u = UrgencyHigh
	case `"critical"`:
		*u = UrgencyCritical
	default:
		return errors.New("invalid urgency: " + string(data))
	}
	return nil
}

// ClassifyUrgency 健康度 -> 紧急度
func ClassifyUrgency(healthFactor float64) Urgency {
	switch {
	case healthFactor <= 0.5:
		return UrgencyCritical
	case healthFactor <= 0.7:
		return UrgencyHigh
	case healthFactor <= 0.9:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// =============================================================================
// Candidate - 强平候选 (每周期全量重建, 从不持久化)
// =============================================================================

// Candidate 强平候选
//
// 对仓位的只读视图: 持有扫描时刻的仓位值拷贝。
// 队列每个扫描周期整体替换, 恢复健康的仓位自然消失。
type Candidate struct {
	Position position.Position `json:"position"`

	Urgency       Urgency `json:"urgency"`
	EstimatedLoss float64 `json:"estimatedLoss"` // 负权益幅度, >= 0

	// LiquidationReward 执行方激励 = 名义价值 × 强平费率 × 0.5
	// (另一半费率归保险池, 见执行器)
	LiquidationReward float64 `json:"liquidationReward"`

	// TimeToLiquidation 预计触及强平线的秒数
	// 粗糙的衰减估计, 仅用于排序展示, 不作为任何正确性判据
	TimeToLiquidation float64 `json:"timeToLiquidation"`
}

// =============================================================================
// Event - 强平事件 (不可变, 只追加)
// =============================================================================

// Reason 强平原因
type Reason string

const (
	ReasonHealthFactor Reason = "health_factor" // 健康度跌破 1.0
	ReasonMarginCall   Reason = "margin_call"   // 追保失败 (外部触发路径保留)
	ReasonForced       Reason = "forced"        // 健康度 <= 0.5 的深度穿越
)

// Event 强平事件
//
// 每个被强平仓位恰好产生一条, 创建后不再修改。
// 下游消费方: 账务对账、通知系统、保险基金审计。
type Event struct {
	ID         string `json:"id"`
	PositionID string `json:"positionId"`
	UserID     string `json:"userId"`
	MarketID   string `json:"marketId"`

	LiquidationPrice          float64 `json:"liquidationPrice"` // 成交时刻标记价
	LiquidationSize           float64 `json:"liquidationSize"`
	LiquidationFee            float64 `json:"liquidationFee"`            // 名义价值 × 强平费率
	InsuranceFundContribution float64 `json:"insuranceFundContribution"` // 名义价值 × 保险费率
	LiquidatorReward          float64 `json:"liquidatorReward"`          // 强平费的一半

	Liquidator string `json:"liquidator"`
	Timestamp  int64  `json:"timestamp"` // Unix 毫秒
	Reason     Reason `json:"reason"`
}
