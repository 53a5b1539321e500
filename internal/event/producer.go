// Package event publishes product details page events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Event types.
const (
	TypePageSettled     = "page.settled"
	TypeQuantityChanged = "page.quantity_changed"
)

// Aggregate type constant.
const AggregateTypePage = "page"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// DefaultTopic receives every page event unless configured otherwise.
const DefaultTopic = "storefront.page-events"

// PageSettledData is the payload for a page.settled event.
type PageSettledData struct {
	SessionID    string `json:"session_id"`
	MountID      string `json:"mount_id"`
	ProductID    string `json:"product_id"`
	Status       string `json:"status"`
	Failure      string `json:"failure,omitempty"`
	Title        string `json:"title,omitempty"`
	SimilarCount int    `json:"similar_count"`
	Version      int64  `json:"version"`
}

// QuantityChangedData is the payload for a page.quantity_changed event.
type QuantityChangedData struct {
	SessionID string `json:"session_id"`
	MountID   string `json:"mount_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Version   int64  `json:"version"`
}

// Publisher sends an envelope to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes page events. All events of one session share a key,
// so they stay ordered.
type Producer struct {
	kafka  Publisher
	topic  string
	logger *slog.Logger
}

// NewProducer creates a page event producer writing to topic.
func NewProducer(kafka Publisher, topic string, logger *slog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		kafka:  kafka,
		topic:  topic,
		logger: logger,
	}
}

// PublishPageSettled announces that a page's fetch reached Success or
// Failure.
func (p *Producer) PublishPageSettled(ctx context.Context, s domain.PageState) error {
	data := PageSettledData{
		SessionID:    s.SessionID,
		MountID:      s.MountID,
		ProductID:    s.ProductID,
		Status:       s.Status.String(),
		SimilarCount: len(s.Similar),
		Version:      s.Version,
	}
	if s.Failure != domain.FailureNone {
		data.Failure = s.Failure.String()
	}
	if s.Product != nil {
		data.Title = s.Product.Title
	}
	return p.publish(ctx, TypePageSettled, s, data)
}

// PublishQuantityChanged announces a new stepper quantity.
func (p *Producer) PublishQuantityChanged(ctx context.Context, s domain.PageState) error {
	data := QuantityChangedData{
		SessionID: s.SessionID,
		MountID:   s.MountID,
		ProductID: s.ProductID,
		Quantity:  s.Quantity,
		Version:   s.Version,
	}
	return p.publish(ctx, TypeQuantityChanged, s, data)
}

func (p *Producer) publish(ctx context.Context, eventType string, s domain.PageState, data any) error {
	evt, err := pkgkafka.NewEvent(eventType, s.SessionID, AggregateTypePage, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	evt.WithMetadata("product_id", s.ProductID)

	if err := p.kafka.Publish(ctx, p.topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published page event",
		slog.String("event_type", eventType),
		slog.String("product_id", s.ProductID),
	)
	return nil
}
