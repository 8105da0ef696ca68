package repository

import (
	"context"

	"CandlePull/internal/domain/models"
	pkgkafka "CandlePull/pkg/kafka"
)

// KafkaReportPublisher streams candle batches and run reports for downstream
// consumers.
type KafkaReportPublisher struct {
	producer    *pkgkafka.Producer
	candleTopic string
	reportTopic string
}

// NewKafkaReportPublisher creates the publisher over an existing producer.
func NewKafkaReportPublisher(producer *pkgkafka.Producer, candleTopic, reportTopic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{
		producer:    producer,
		candleTopic: candleTopic,
		reportTopic: reportTopic,
	}
}

// PublishBatch pushes one message per candle, keyed by the symbol+timeframe
// slot so a partition sees each key's rows in write order.
func (p *KafkaReportPublisher) PublishBatch(ctx context.Context, batch *models.CandleBatch) error {
	if len(batch.Rows) == 0 {
		return nil
	}
	key := []byte(models.MetaKey(batch.Exchange, batch.Symbol, batch.Timeframe))
	msgs := make([]pkgkafka.Message, len(batch.Rows))
	for i, c := range batch.Rows {
		msgs[i] = pkgkafka.Message{
			Key: key,
			Value: map[string]interface{}{
				"exchange":  batch.Exchange,
				"symbol":    batch.Symbol,
				"timeframe": batch.Timeframe,
				"ts":        c.Timestamp.UnixMilli(),
				"o":         c.Open,
				"h":         c.High,
				"l":         c.Low,
				"c":         c.Close,
				"v":         c.Volume,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.candleTopic, msgs)
}

// PublishReport pushes the aggregate run report.
func (p *KafkaReportPublisher) PublishReport(ctx context.Context, report *models.Report) error {
	return p.producer.Publish(ctx, p.reportTopic, []byte("run_report"), report)
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
