package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"currencyapi/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// RateAction what reconciliation did to a rate row
type RateAction string

const (
	RateInserted RateAction = "inserted"
	RateUpdated  RateAction = "updated"
)

// RateEvent published for every rate row reconciliation writes
type RateEvent struct {
	Action     RateAction      `json:"action"`
	CurrencyID uint            `json:"currency_id"`
	NumCode    int             `json:"num_code"`
	CharCode   string          `json:"char_code"`
	Nominal    int             `json:"nominal"`
	Value      decimal.Decimal `json:"value"`
	VunitRate  decimal.Decimal `json:"vunit_rate"`
	FeedDate   string          `json:"feed_date"`
	ModifiedAt time.Time       `json:"modified_at"`
}

func newRateEvent(action RateAction, currency *model.Currency, rate *model.CurrencyRate, feedDate string) RateEvent {
	return RateEvent{
		Action:     action,
		CurrencyID: currency.ID,
		NumCode:    currency.NumCode,
		CharCode:   currency.CharCode,
		Nominal:    rate.Nominal,
		Value:      rate.Value,
		VunitRate:  rate.VunitRate,
		FeedDate:   feedDate,
		ModifiedAt: rate.ModifiedAt,
	}
}

// RatePublisher delivers rate events to downstream consumers
type RatePublisher interface {
	PublishRates(ctx context.Context, events []RateEvent) error
	Close() error
}

// NopPublisher drops events, used when no brokers are configured
type NopPublisher struct{}

func (NopPublisher) PublishRates(context.Context, []RateEvent) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// KafkaPublisher writes events keyed by char code so one currency stays on one partition
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// NewRatePublisher picks kafka when brokers are set
func NewRatePublisher(brokers []string, topic string) RatePublisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func (k *KafkaPublisher) PublishRates(ctx context.Context, events []RateEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	timestamp := time.Now()
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode rate event %s: %w", event.CharCode, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.CharCode),
			Value: value,
			Time:  timestamp,
		})
	}
	return k.writer.WriteMessages(ctx, messages...)
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
