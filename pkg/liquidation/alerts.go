// 文件: pkg/liquidation/alerts.go
// 风险告警外发 - NATS 适配
//
// 两类告警走 NATS (低延迟、可丢):
// - risk.watchlist: 仓位进入观察名单
// - ops.alerts:     行情断供升级
// 与 Kafka 事件流的分工: 强平事件要审计 (Kafka), 告警要及时 (NATS)。

package liquidation

import (
	"log"
	"time"

	"cmx.com/pkg/nats"
	"cmx.com/pkg/position"
)

const (
	WatchlistSubject = "risk.watchlist"
	OpsAlertSubject  = "ops.alerts"
)

// watchlistAlert risk.watchlist 载荷
type watchlistAlert struct {
	PositionID   string  `json:"positionId"`
	UserID       string  `json:"userId"`
	MarketID     string  `json:"marketId"`
	HealthFactor float64 `json:"healthFactor"`
	Timestamp    int64   `json:"timestamp"`
}

// staleFeedAlert ops.alerts 载荷
type staleFeedAlert struct {
	Kind      string `json:"kind"` // "stale_feed"
	MarketID  string `json:"marketId"`
	StaleFor  string `json:"staleFor"`
	Timestamp int64  `json:"timestamp"`
}

// NATSAlerter 把风险告警发布到 NATS
//
// 两个方法的签名分别匹配 Engine.OnWatchlist 与 markprice.Service.OnStale,
// 可直接作为回调挂接。发布失败只记日志: 告警是尽力而为的。
type NATSAlerter struct {
	pub *nats.Publisher
}

func NewNATSAlerter(pub *nats.Publisher) *NATSAlerter {
	return &NATSAlerter{pub: pub}
}

// NotifyWatchlist 仓位进入观察名单
func (a *NATSAlerter) NotifyWatchlist(pos position.Position) {
	alert := watchlistAlert{
		PositionID:   pos.ID,
		UserID:       pos.UserID,
		MarketID:     pos.MarketID,
		HealthFactor: pos.HealthFactor,
		Timestamp:    time.Now().UnixMilli(),
	}
	if err := a.pub.Publish(WatchlistSubject, alert); err != nil {
		log.Printf("[Alerter] WARNING: publish watchlist alert for %s failed: %v", pos.ID, err)
	}
}

// NotifyStaleFeed 行情断供升级
func (a *NATSAlerter) NotifyStaleFeed(marketID string, since time.Time) {
	alert := staleFeedAlert{
		Kind:      "stale_feed",
		MarketID:  marketID,
		StaleFor:  time.Since(since).String(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := a.pub.Publish(OpsAlertSubject, alert); err != nil {
		log.Printf("[Alerter] WARNING: publish stale-feed alert for %s failed: %v", marketID, err)
	}
}
