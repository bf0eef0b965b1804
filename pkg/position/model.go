// 文件: pkg/position/model.go
// 杠杆仓位数据结构
//
// 【存储策略】
// - 权威数据: PositionBook (内存, 单写者)
// - 持久化: MySQL (write-through, 失败只记日志不阻塞风控路径)
// - 缓存: Redis (查询加速)

package position

import (
	"errors"

	"cmx.com/pkg/riskparam"
)

// =============================================================================
// 持仓方向
// =============================================================================

type Side int8

const (
	SideLong  Side = 1  // 多头
	SideShort Side = -1 // 空头
)

func (s Side) String() string {
	if s == SideLong {
		return "LONG"
	}
	return "SHORT"
}

// MarshalJSON 对外输出 "long"/"short" (与 API 消费方约定一致)
func (s Side) MarshalJSON() ([]byte, error) {
	if s == SideLong {
		return []byte(`"long"`), nil
	}
	return []byte(`"short"`), nil
}

// UnmarshalJSON 解析 "long"/"short"
func (s *Side) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"long"`:
		*s = SideLong
	case `"short"`:
		*s = SideShort
	default:
		return errors.New("invalid side: " + string(data))
	}
	return nil
}

// =============================================================================
// Position - 杠杆仓位
// =============================================================================

// Position 单笔杠杆敞口
//
// 【字段分组】
// - 开仓条款: 开仓后固定不变 (Side/Size/EntryPrice/Leverage/Margin)
// - 派生字段: 每个扫描周期由健康度评估重算写回, 不独立演化
//
// 【生命周期】
// 成交回报创建 → 扫描周期原地更新 → 强平或用户平仓时移除 (恰好一次)
type Position struct {
	// ===== 身份 =====
	ID       string `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	UserID   string `gorm:"column:user_id;type:varchar(64);index" json:"userId"`
	MarketID string `gorm:"column:market_id;type:varchar(64);index" json:"marketId"`

	// Category 商品分类 (开仓时显式指定)
	// 风险参数按此字段查找, 不解析 MarketID
	Category riskparam.Category `gorm:"column:category;type:varchar(32)" json:"category"`

	// ===== 开仓条款 =====
	Side       Side    `gorm:"column:side" json:"side"`
	Size       float64 `gorm:"column:size" json:"size"`              // 基础单位数量, > 0
	EntryPrice float64 `gorm:"column:entry_price" json:"entryPrice"` // 开仓均价, > 0
	Leverage   int     `gorm:"column:leverage" json:"leverage"`      // 整数杠杆, >= 1
	Margin     float64 `gorm:"column:margin" json:"margin"`          // 已缴保证金, > 0

	// ===== 派生字段 (每周期重算) =====
	CurrentPrice     float64 `gorm:"column:current_price" json:"currentPrice"`
	UnrealizedPnl    float64 `gorm:"column:unrealized_pnl" json:"unrealizedPnl"`
	HealthFactor     float64 `gorm:"column:health_factor" json:"healthFactor"`
	LiquidationPrice float64 `gorm:"column:liquidation_price" json:"liquidationPrice"`
	LastUpdate       int64   `gorm:"column:last_update" json:"lastUpdate"` // Unix 毫秒

	CreatedAt int64 `gorm:"column:created_at" json:"-"`
}

func (Position) TableName() string {
	return "positions"
}

// Notional 名义价值 = 当前价 × 数量
func (p *Position) Notional() float64 {
	return p.CurrentPrice * p.Size
}

// Equity 当前权益 = 保证金 + 未实现盈亏
func (p *Position) Equity() float64 {
	return p.Margin + p.UnrealizedPnl
}
