package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/quant-data-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes stock catalog and price cache events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishStockAdded publishes a stock added event
func (p *Producer) PublishStockAdded(ctx context.Context, stock *models.Stock) error {
	event := models.StockEvent{
		EventType: models.EventStockAdded,
		Stock:     stock,
		Ticker:    stock.Ticker,
		Timestamp: p.now().UTC(),
	}
	return p.publish(ctx, stock.Ticker, event)
}

// PublishStockRemoved publishes a stock removed event
func (p *Producer) PublishStockRemoved(ctx context.Context, ticker string) error {
	event := models.StockEvent{
		EventType: models.EventStockRemoved,
		Ticker:    ticker,
		Timestamp: p.now().UTC(),
	}
	return p.publish(ctx, ticker, event)
}

// PublishStockUpdated publishes a stock updated event
func (p *Producer) PublishStockUpdated(ctx context.Context, stock *models.Stock) error {
	event := models.StockEvent{
		EventType: models.EventStockUpdated,
		Stock:     stock,
		Ticker:    stock.Ticker,
		Timestamp: p.now().UTC(),
	}
	return p.publish(ctx, stock.Ticker, event)
}

// PublishPricesCached publishes an event after bars were fetched from the provider and stored
func (p *Producer) PublishPricesCached(ctx context.Context, ticker string, bars int) error {
	event := models.StockEvent{
		EventType: models.EventPricesCached,
		Ticker:    ticker,
		Bars:      bars,
		Timestamp: p.now().UTC(),
	}
	return p.publish(ctx, ticker, event)
}

// Messages keyed by ticker land on the same partition, so events for one
// stock are consumed in order.
func (p *Producer) publish(ctx context.Context, key string, event models.StockEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
