// 文件: pkg/liquidation/events.go
// 强平事件外发 - Kafka 事件流适配
//
// 执行器只依赖 EventSink 接口;
// 生产部署接 Kafka (liquidation.events), 测试/仿真接内存桩。

package liquidation

import (
	"encoding/json"

	"cmx.com/pkg/kafka"
)

// EventTopic 强平事件流 topic
const EventTopic = "liquidation.events"

// EventSink 事件外发接口
type EventSink interface {
	Publish(ev Event) error
}

// =============================================================================
// Kafka 适配
// =============================================================================

// eventMessage 实现 kafka.Message
type eventMessage struct {
	ev Event
}

func (m eventMessage) Topic() string { return EventTopic }

// Key 按市场分区: 同一市场的强平事件保序
func (m eventMessage) Key() string { return m.ev.MarketID }

func (m eventMessage) Value() ([]byte, error) { return json.Marshal(m.ev) }

// KafkaSink 把强平事件发布到 Kafka
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(producer *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Publish(ev Event) error {
	return s.producer.Send(eventMessage{ev: ev})
}
