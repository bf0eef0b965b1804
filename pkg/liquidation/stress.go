// 文件: pkg/liquidation/stress.go
// 压力测试 - 假设性价格冲击的离线 what-if 分析
//
// 【纯度保证】
// 全部计算发生在仓位的值拷贝上, 从不触碰仓位簿;
// 返回后簿内每个仓位的 CurrentPrice 与调用前逐位相等。

package liquidation

import (
	"fmt"
	"math"

	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

// =============================================================================
// 冲击场景
// =============================================================================

// Scenario 冲击场景
type Scenario string

const (
	ScenarioMinor    Scenario = "minor"    // 5% 不利移动
	ScenarioModerate Scenario = "moderate" // 15% 不利移动
	ScenarioSevere   Scenario = "severe"   // 30% 不利移动
)

// Shock 场景对应的冲击幅度
func (s Scenario) Shock() (float64, error) {
	switch s {
	case ScenarioMinor:
		return 0.05, nil
	case ScenarioModerate:
		return 0.15, nil
	case ScenarioSevere:
		return 0.30, nil
	default:
		return 0, fmt.Errorf("unknown stress scenario: %q", s)
	}
}

// StressResult 压测结果
//
// TotalLoss 是冲击后 uPnL 绝对值的合计 (仅新触发者),
// 与候选的 estimatedLoss (负权益幅度) 是两个口径:
// 前者回答 "这些仓位亏了多少", 后者回答 "保险池要兜多少"。
type StressResult struct {
	LiquidationsTriggered int      `json:"liquidationsTriggered"` // 新跨入强平区的仓位数
	TotalLoss             float64  `json:"totalLoss"`
	PositionsAffected     []string `json:"positionsAffected"`
}

// =============================================================================
// SimulateStress
// =============================================================================

// SimulateStress 对仓位快照回放不利价格冲击
//
// 每个仓位按伤害方向施压 (多头跌、空头涨),
// 只统计 "原本健康、冲击后跨入强平区" 的仓位。
// 评估失败的仓位 (分类未注册/数据畸形) 与常规扫描一致: 跳过。
func SimulateStress(
	positions []position.Position,
	table *riskparam.Table,
	scenario Scenario,
) (StressResult, error) {
	shock, err := scenario.Shock()
	if err != nil {
		return StressResult{}, err
	}

	result := StressResult{PositionsAffected: make([]string, 0)}

	for i := range positions {
		// 值拷贝: 对 scratch 的一切修改不可能泄漏回簿
		scratch := positions[i]

		params, err := table.Get(scratch.Category)
		if err != nil {
			continue
		}

		before, err := Evaluate(&scratch, params)
		if err != nil {
			continue
		}

		// 不利方向施压
		if scratch.Side == position.SideLong {
			scratch.CurrentPrice *= 1 - shock
		} else {
			scratch.CurrentPrice *= 1 + shock
		}

		after, err := Evaluate(&scratch, params)
		if err != nil {
			continue
		}

		if after.HealthFactor <= LiquidationThreshold &&
			before.HealthFactor > LiquidationThreshold {
			result.LiquidationsTriggered++
			result.TotalLoss += math.Abs(after.UnrealizedPnl)
			result.PositionsAffected = append(result.PositionsAffected, scratch.ID)
		}
	}

	return result, nil
}
