// 文件: pkg/market/broadcaster.go
// 行情广播器 - Fan-out 分发
//
//	 Simulator (生产者)
//	       |
//	       v
//	 [Broadcaster]
//	   /   |   \
//	  v    v    v
//	风控  NATS  控制台
//
// 隔离性: 某个订阅者处理慢时直接对它丢包, 绝不拖累其他订阅者。

package market

import "sync"

// Broadcaster 把行情分发给 N 个订阅者
type Broadcaster struct {
	// 读多写少: Broadcast 高频, Subscribe 只在启动时发生
	mu          sync.RWMutex
	subscribers []chan Tick
}

// NewBroadcaster 创建广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make([]chan Tick, 0),
	}
}

// Subscribe 订阅行情, 返回只读通道
func (b *Broadcaster) Subscribe() <-chan Tick {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Tick, 1024)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast 广播一条行情 (Hot Path)
func (b *Broadcaster) Broadcast(t Tick) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- t:
		default:
			// 订阅者通道满, 丢弃
		}
	}
}

// Close 关闭所有订阅者通道
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
