// 文件: pkg/riskparam/table.go
// 风险参数表 - 按商品分类查找保证金/费率配置
//
// 【设计】
// 加载一次, 之后只读。内部是普通 map, 构造后无任何写入,
// 因此并发读不需要加锁。

package riskparam

import (
	"errors"
	"fmt"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	ErrUnknownCategory   = errors.New("unknown commodity category")
	ErrInvalidParameters = errors.New("invalid risk parameters")
)

// =============================================================================
// Table - 只读参数表
// =============================================================================

// Table 分类 -> 风险参数 的只读映射
type Table struct {
	params map[Category]RiskParameters
}

// NewTable 由参数列表构建只读表
//
// 所有条目必须通过 Validate, 重复分类视为配置错误。
func NewTable(list []RiskParameters) (*Table, error) {
	params := make(map[Category]RiskParameters, len(list))
	for _, p := range list {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := params[p.Category]; dup {
			return nil, fmt.Errorf("%w: duplicate category %s", ErrInvalidParameters, p.Category)
		}
		params[p.Category] = p
	}
	return &Table{params: params}, nil
}

// Get 查找分类参数
//
// 分类未注册时返回 ErrUnknownCategory。
// 调用方 (扫描循环) 应跳过该仓位并继续, 不得中断整个扫描。
func (t *Table) Get(category Category) (RiskParameters, error) {
	p, ok := t.params[category]
	if !ok {
		return RiskParameters{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return p, nil
}

// Categories 返回所有已注册分类
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.params))
	for c := range t.params {
		out = append(out, c)
	}
	return out
}

// =============================================================================
// 默认参数
// =============================================================================

// DefaultParameters 四大商品分类的默认风险参数
//
// 保证金比率反映各分类的经验波动性:
// 能源和农产品波动大, 维持保证金要求高于贵金属。
func DefaultParameters() []RiskParameters {
	return []RiskParameters{
		{
			Category:               CategoryPreciousMetals,
			InitialMarginRatio:     0.05, // 5% 初始保证金 (20x 杠杆)
			MaintenanceMarginRatio: 0.03, // 3% 维持保证金
			LiquidationFeeRate:     0.005,
			InsuranceFundFeeRate:   0.002,
			MaxLeverage:            20,
			VolatilityScalar:       1.0,
		},
		{
			Category:               CategoryEnergy,
			InitialMarginRatio:     0.08, // 8% 初始保证金 (12.5x 杠杆)
			MaintenanceMarginRatio: 0.05,
			LiquidationFeeRate:     0.007,
			InsuranceFundFeeRate:   0.003,
			MaxLeverage:            12,
			VolatilityScalar:       1.5,
		},
		{
			Category:               CategoryAgriculture,
			InitialMarginRatio:     0.10, // 10% 初始保证金 (10x 杠杆)
			MaintenanceMarginRatio: 0.06,
			LiquidationFeeRate:     0.008,
			InsuranceFundFeeRate:   0.003,
			MaxLeverage:            10,
			VolatilityScalar:       2.0,
		},
		{
			Category:               CategoryIndustrialMetals,
			InitialMarginRatio:     0.06, // 6% 初始保证金 (16.7x 杠杆)
			MaintenanceMarginRatio: 0.04,
			LiquidationFeeRate:     0.006,
			InsuranceFundFeeRate:   0.0025,
			MaxLeverage:            16,
			VolatilityScalar:       1.2,
		},
	}
}

// DefaultTable 构建默认参数表
// 默认参数是静态合法配置, 构建失败说明代码被改坏, 直接 panic。
func DefaultTable() *Table {
	t, err := NewTable(DefaultParameters())
	if err != nil {
		panic(err)
	}
	return t
}
