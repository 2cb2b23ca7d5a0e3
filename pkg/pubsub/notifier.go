package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// AnchoredEvent is the message body broadcast after a ledger record is
// anchored externally.
type AnchoredEvent struct {
	RecordID       string    `json:"record_id"`
	RecordType     string    `json:"record_type"`
	SequenceNumber int64     `json:"sequence_number"`
	AnchorRef      string    `json:"anchor_ref"`
	AnchoredAt     time.Time `json:"anchored_at"`
}

type topicPublisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// gcpPublisher adapts a Pub/Sub publisher handle to topicPublisher.
type gcpPublisher struct {
	publisher *pubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := g.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

// AnchorNotifier broadcasts anchored-record events on the configured topic.
type AnchorNotifier struct {
	publisher topicPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewAnchorNotifier builds a notifier publishing on the client's anchor topic.
func NewAnchorNotifier(client *Client, logg *logger.Logger) (*AnchorNotifier, error) {
	if client == nil {
		return nil, errors.New("pubsub client required")
	}
	publisher := client.AnchorPublisher()
	if publisher == nil {
		return nil, errors.New("anchor topic not configured")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &AnchorNotifier{
		publisher: &gcpPublisher{publisher: publisher},
		logg:      logg,
		now:       time.Now,
	}, nil
}

// NotifyAnchored publishes one anchored-record event and waits for the
// server acknowledgment.
func (n *AnchorNotifier) NotifyAnchored(ctx context.Context, record *models.LedgerRecord, anchorRef string) error {
	if record == nil {
		return errors.New("record required")
	}
	event := AnchoredEvent{
		RecordID:       record.ID,
		RecordType:     string(record.Type),
		SequenceNumber: record.SequenceNumber,
		AnchorRef:      anchorRef,
		AnchoredAt:     n.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal anchored event: %w", err)
	}

	messageID, err := n.publisher.Publish(ctx, data, map[string]string{
		"record_id":   record.ID,
		"record_type": string(record.Type),
	})
	if err != nil {
		return fmt.Errorf("publish anchored event: %w", err)
	}

	eventCtx := n.logg.WithRecordID(ctx, record.ID)
	n.logg.Info(n.logg.WithField(eventCtx, "message_id", messageID), "anchored event published")
	return nil
}
