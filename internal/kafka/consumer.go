package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// EventHandler reacts to stock catalog events
type EventHandler interface {
	// StockAdded is called for STOCK_ADDED events, typically to prefetch history
	StockAdded(ctx context.Context, ticker string) error
	// StockRemoved is called for STOCK_REMOVED events, typically to drop cached ranges
	StockRemoved(ctx context.Context, ticker string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads stock events and dispatches them to an EventHandler.
// PRICES_CACHED and STOCK_UPDATED events are acknowledged without action.
type Consumer struct {
	reader  messageReader
	handler EventHandler
	logger  *logrus.Logger
}

// NewConsumer creates a new Kafka consumer for stock events
func NewConsumer(brokers []string, topic, groupID string, handler EventHandler, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka stock event consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer shutting down")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.WithError(err).Error("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.WithError(err).WithField("key", string(msg.Key)).Error("Error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.StockEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal stock event: %w", err)
	}

	ticker := event.Ticker
	if ticker == "" && event.Stock != nil {
		ticker = event.Stock.Ticker
	}
	if ticker == "" {
		return fmt.Errorf("stock event %s has no ticker", event.EventType)
	}

	c.logger.WithFields(logrus.Fields{
		"event":     event.EventType,
		"ticker":    ticker,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}).Debug("Received stock event")

	switch event.EventType {
	case models.EventStockAdded:
		if err := c.handler.StockAdded(ctx, ticker); err != nil {
			return fmt.Errorf("failed to handle %s for %s: %w", event.EventType, ticker, err)
		}
	case models.EventStockRemoved:
		if err := c.handler.StockRemoved(ctx, ticker); err != nil {
			return fmt.Errorf("failed to handle %s for %s: %w", event.EventType, ticker, err)
		}
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
