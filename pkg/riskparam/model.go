// 文件: pkg/riskparam/model.go
// 商品分类与风险参数定义
//
// 【存储策略】
// - 主存储: MySQL (持久化, 启动时加载)
// - 运行时: 只读内存表, 无锁并发读

package riskparam

import "fmt"

// =============================================================================
// 商品分类
// =============================================================================

// Category 商品分类
//
// 每个永续合约市场在创建仓位时就显式打上分类标签,
// 风险参数按分类查找, 不做任何 marketID 字符串推断。
type Category string

const (
	CategoryPreciousMetals   Category = "precious_metals"   // 贵金属 (黄金/白银/铂金)
	CategoryEnergy           Category = "energy"            // 能源 (原油/天然气)
	CategoryAgriculture      Category = "agriculture"       // 农产品 (玉米/小麦/大豆)
	CategoryIndustrialMetals Category = "industrial_metals" // 工业金属 (铜/铝/锌)
)

// Valid 是否为已知分类
func (c Category) Valid() bool {
	switch c {
	case CategoryPreciousMetals, CategoryEnergy, CategoryAgriculture, CategoryIndustrialMetals:
		return true
	}
	return false
}

// =============================================================================
// RiskParameters - 分类风险参数 (核心结构)
// =============================================================================

// RiskParameters 单个商品分类的保证金/费率/杠杆配置
//
// 【设计】
// 1. 只读结构, 加载后不可变, 可安全并发共享
// 2. 金额比率用 float64, 与健康度计算引擎保持一致
// 3. 约束: 0 < MaintenanceMarginRatio < InitialMarginRatio < 1
//    MaxLeverage ≈ round(1/InitialMarginRatio) (意图如此, 不强制)
type RiskParameters struct {
	ID       uint     `gorm:"primaryKey;autoIncrement" json:"-"`
	Category Category `gorm:"column:category;type:varchar(32);uniqueIndex" json:"category"`

	// ===== 保证金比率 =====
	InitialMarginRatio     float64 `gorm:"column:initial_margin_ratio" json:"initialMarginRatio"`         // 开仓要求
	MaintenanceMarginRatio float64 `gorm:"column:maintenance_margin_ratio" json:"maintenanceMarginRatio"` // 低于此线触发强平

	// ===== 强平费率 (按名义价值计) =====
	LiquidationFeeRate   float64 `gorm:"column:liquidation_fee_rate" json:"liquidationFeeRate"`
	InsuranceFundFeeRate float64 `gorm:"column:insurance_fund_fee_rate" json:"insuranceFundFeeRate"`

	// ===== 杠杆与波动性 =====
	MaxLeverage int `gorm:"column:max_leverage" json:"maxLeverage"`

	// VolatilityScalar 相对波动性倍数
	// 用于估算该分类价格移动速度 (展示/排序用途, 不参与强平判定)
	VolatilityScalar float64 `gorm:"column:volatility_scalar" json:"volatilityScalar"`

	UpdatedAt int64 `gorm:"column:updated_at" json:"-"`
}

func (RiskParameters) TableName() string {
	return "risk_parameters"
}

// Validate 校验参数合法性
func (p RiskParameters) Validate() error {
	if !p.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, p.Category)
	}
	if p.MaintenanceMarginRatio <= 0 ||
		p.InitialMarginRatio <= p.MaintenanceMarginRatio ||
		p.InitialMarginRatio >= 1 {
		return fmt.Errorf("%w: category=%s mmr=%v imr=%v",
			ErrInvalidParameters, p.Category, p.MaintenanceMarginRatio, p.InitialMarginRatio)
	}
	if p.MaxLeverage < 1 {
		return fmt.Errorf("%w: category=%s maxLeverage=%d",
			ErrInvalidParameters, p.Category, p.MaxLeverage)
	}
	if p.LiquidationFeeRate < 0 || p.InsuranceFundFeeRate < 0 || p.VolatilityScalar <= 0 {
		return fmt.Errorf("%w: category=%s negative fee or volatility",
			ErrInvalidParameters, p.Category)
	}
	return nil
}
