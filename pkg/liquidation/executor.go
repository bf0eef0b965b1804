// 文件: pkg/liquidation/executor.go
// 强平执行器 - 有界消化候选队列
//
// 【节流设计】
// 每周期最多执行 MaxPerCycle 笔 (默认 5), 为什么?
// 1. 限定单周期最坏延迟
// 2. 下游 (保险基金/通知) 收到匀速滴灌而非洪峰
// 剩余候选无需补偿处理: 队列是每周期的全新快照,
// 仍可强平的仓位下周期会重新排到队首。
//
// 【失败语义】
// 仓位已被并发平掉 → 跳过该候选, 记日志, 继续消化后面的;
// 单个候选的失败永不中断整个 drain。

package liquidation

import (
	"context"
	"log"
	"time"

	"cmx.com/pkg/ident"
	"cmx.com/pkg/insurance"
	"cmx.com/pkg/position"
	"cmx.com/pkg/riskparam"
)

const DefaultMaxPerCycle = 5

// Executor 强平执行器
type Executor struct {
	book    *position.Book
	table   *riskparam.Table
	history *History

	maxPerCycle    int
	liquidatorID   string
	settleCurrency string

	// 可选协作方: nil 时对应动作静默跳过
	sink EventSink       // 事件流 (Kafka)
	fund *insurance.Fund // 保险基金
}

// NewExecutor 创建执行器
func NewExecutor(book *position.Book, table *riskparam.Table, history *History) *Executor {
	return &Executor{
		book:           book,
		table:          table,
		history:        history,
		maxPerCycle:    DefaultMaxPerCycle,
		liquidatorID:   "liquidation_bot",
		settleCurrency: "USD",
	}
}

// SetMaxPerCycle 设置单周期执行上限 (非正值忽略)
func (e *Executor) SetMaxPerCycle(n int) {
	if n > 0 {
		e.maxPerCycle = n
	}
}

// SetLiquidatorID 设置执行方标识
func (e *Executor) SetLiquidatorID(id string) {
	if id != "" {
		e.liquidatorID = id
	}
}

// SetSettleCurrency 设置结算货币 (保险基金入账用)
func (e *Executor) SetSettleCurrency(currency string) {
	if currency != "" {
		e.settleCurrency = currency
	}
}

// SetEventSink 接入事件流
func (e *Executor) SetEventSink(sink EventSink) { e.sink = sink }

// SetInsuranceFund 接入保险基金
func (e *Executor) SetInsuranceFund(fund *insurance.Fund) { e.fund = fund }

// Drain 按序消化候选队列, 返回实际产生的事件
//
// 消失的候选 (并发平仓/重复强平) 不计入上限。
func (e *Executor) Drain(ctx context.Context, candidates []Candidate) []Event {
	if len(candidates) == 0 {
		return nil
	}

	executed := make([]Event, 0, e.maxPerCycle)
	for _, cand := range candidates {
		if len(executed) >= e.maxPerCycle {
			break
		}

		ev, ok := e.executeOne(ctx, cand)
		if !ok {
			continue
		}
		executed = append(executed, ev)
	}

	if len(executed) > 0 {
		log.Printf("[Executor] Drain completed: executed=%d, queued=%d",
			len(executed), len(candidates))
	}
	return executed
}

// executeOne 执行单笔强平
func (e *Executor) executeOne(ctx context.Context, cand Candidate) (Event, bool) {
	// 1. 原子摘除: 存在性复核与移除是一步完成的,
	//    读者看不到半强平状态
	pos, ok := e.book.Remove(cand.Position.ID)
	if !ok {
		// 执行冲突: 仓位已被并发平掉, 非致命
		log.Printf("[Executor] Skipping vanished candidate %s (already closed)",
			cand.Position.ID)
		return Event{}, false
	}

	// 2. 费用按执行时刻的仓位状态重算
	params, err := e.table.Get(pos.Category)
	if err != nil {
		// 候选构建时分类还在, 执行时丢失属于配置事故:
		// 仓位已摘除, 记录零费率事件保住审计链
		log.Printf("[Executor] ERROR: %v for position %s, emitting zero-fee event", err, pos.ID)
		params = riskparam.RiskParameters{}
	}

	notional := pos.CurrentPrice * pos.Size
	liquidationFee := notional * params.LiquidationFeeRate
	fundContribution := notional * params.InsuranceFundFeeRate

	reason := ReasonHealthFactor
	if pos.HealthFactor <= 0.5 {
		reason = ReasonForced
	}

	ev := Event{
		ID:                        ident.NewEventID(),
		PositionID:                pos.ID,
		UserID:                    pos.UserID,
		MarketID:                  pos.MarketID,
		LiquidationPrice:          pos.CurrentPrice,
		LiquidationSize:           pos.Size,
		LiquidationFee:            liquidationFee,
		InsuranceFundContribution: fundContribution,
		LiquidatorReward:          liquidationFee * 0.5,
		Liquidator:                e.liquidatorID,
		Timestamp:                 time.Now().UnixMilli(),
		Reason:                    reason,
	}

	// 3. 事件落地: 历史 → 事件流 → 保险基金
	//    外发/入账失败只记日志, 强平本身已不可逆
	e.history.Add(ev)

	if e.sink != nil {
		if err := e.sink.Publish(ev); err != nil {
			log.Printf("[Executor] WARNING: publish event %s failed: %v", ev.ID, err)
		}
	}

	if e.fund != nil && fundContribution > 0 {
		err := e.fund.Credit(ctx, e.settleCurrency, fundContribution,
			"LIQUIDATION_FEE", pos.UserID, pos.MarketID, "Liquidation fee share")
		if err != nil {
			log.Printf("[Executor] WARNING: insurance credit for %s failed: %v", ev.ID, err)
		}
	}

	log.Printf("[Executor] Liquidated position %s user=%s market=%s price=%.4f reason=%s",
		pos.ID, pos.UserID, pos.MarketID, pos.CurrentPrice, reason)

	return ev, true
}
