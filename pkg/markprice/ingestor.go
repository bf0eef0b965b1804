// 文件: pkg/markprice/ingestor.go
// NATS 价格摄取 - 推送式行情接入
//
// 外部预言机/行情网关把标记价发布到 prices.<marketID>,
// 摄取器异步更新 Service, 扫描循环永远只读最后已知价。

package markprice

import (
	"encoding/json"
	"fmt"
	"strings"

	cmxnats "cmx.com/pkg/nats"
)

// PriceUpdate 价格推送消息体
type PriceUpdate struct {
	MarketID string  `json:"marketId"`
	Price    float64 `json:"price"`
	Ts       int64   `json:"ts"` // Unix 毫秒
}

// Ingestor NATS 价格摄取器
type Ingestor struct {
	sub     *cmxnats.Subscriber
	service *Service
}

const priceSubjectPrefix = "prices."

// NewIngestor 连接 NATS 并订阅 prices.>
func NewIngestor(url string, service *Service) (*Ingestor, error) {
	ing := &Ingestor{service: service}

	sub, err := cmxnats.NewSubscriber(url, ing.handle)
	if err != nil {
		return nil, fmt.Errorf("price ingestor: %w", err)
	}
	ing.sub = sub

	if err := sub.Subscribe(priceSubjectPrefix + ">"); err != nil {
		sub.Close()
		return nil, fmt.Errorf("price ingestor: %w", err)
	}
	return ing, nil
}

func (i *Ingestor) handle(subject string, data []byte) error {
	var upd PriceUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("decode price update: %w", err)
	}

	// 消息体缺 marketId 时退回主题后缀
	if upd.MarketID == "" {
		upd.MarketID = strings.TrimPrefix(subject, priceSubjectPrefix)
	}

	i.service.UpdatePrice(upd.MarketID, upd.Price)
	return nil
}

// Close 断开订阅
func (i *Ingestor) Close() error {
	return i.sub.Close()
}
