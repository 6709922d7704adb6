package event

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"storefront/internal/contracts"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher は注文イベントをKafkaに発行する。
// ブローカー未設定なら無効のまま動く（Publishは何もしない）。
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(brokersCSV string, topic string, log *zap.Logger) *KafkaPublisher {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}

	if len(brokers) == 0 {
		return &KafkaPublisher{log: log}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) Enabled() bool {
	return p.writer != nil
}

// イベントを1件発行する。コミット後に呼ぶこと。
// 発行失敗は注文結果に影響させず、ログだけ残す。
func (p *KafkaPublisher) Publish(ctx context.Context, ev contracts.Event) error {
	if p.writer == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: data,
	})
	if err != nil && p.log != nil {
		p.log.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.Int64("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
