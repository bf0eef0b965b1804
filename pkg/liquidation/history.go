// 文件: pkg/liquidation/history.go
// 强平事件历史 - 有界环形保留
//
// 事件本身不可变; 这里只负责有界存储与倒序查询。
// 权威审计记录在下游 (Kafka 消费方), 内存历史是运维/API 视图。

package liquidation

import "sync"

const DefaultHistoryLimit = 10000

// History 有界事件历史
type History struct {
	mu     sync.RWMutex
	events []Event // 按发生顺序追加
	limit  int
}

// NewHistory 创建历史, limit <= 0 时使用默认上限
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		events: make([]Event, 0),
		limit:  limit,
	}
}

// Add 追加一条事件, 超限时丢弃最旧的
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)
	if len(h.events) > h.limit {
		// 只会超出 1 条, 裁掉头部即可
		h.events = h.events[len(h.events)-h.limit:]
	}
}

// Recent 返回最近 limit 条事件, 最新的在前
//
// limit <= 0 或超过存量时返回全部。
func (h *History) Recent(limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.events)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = h.events[n-1-i]
	}
	return out
}

// Len 当前存量
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}
