package pubsub

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

type fakePublisher struct {
	data       []byte
	attributes map[string]string
	calls      int
}

func (f *fakePublisher) Publish(_ context.Context, data []byte, attributes map[string]string) (string, error) {
	f.calls++
	f.data = data
	f.attributes = attributes
	return "msg-1", nil
}

func TestNotifyAnchoredPublishesEventEnvelope(t *testing.T) {
	publisher := &fakePublisher{}
	notifier := &AnchorNotifier{
		publisher: publisher,
		logg:      logger.New(logger.Options{ServiceName: "pubsub-test", Output: io.Discard}),
		now:       func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) },
	}

	record := &models.LedgerRecord{
		ID:             "abc123",
		Type:           enums.LedgerRecordTypeSale,
		SequenceNumber: 42,
	}
	if err := notifier.NotifyAnchored(context.Background(), record, "anchor-9"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if publisher.calls != 1 {
		t.Fatalf("expected one publish, got %d", publisher.calls)
	}

	var event AnchoredEvent
	if err := json.Unmarshal(publisher.data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.RecordID != "abc123" || event.AnchorRef != "anchor-9" || event.SequenceNumber != 42 {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.RecordType != string(enums.LedgerRecordTypeSale) {
		t.Fatalf("unexpected record type %q", event.RecordType)
	}
	if publisher.attributes["record_id"] != "abc123" {
		t.Fatalf("missing record_id attribute")
	}
}

func TestNotifyAnchoredRejectsNilRecord(t *testing.T) {
	notifier := &AnchorNotifier{
		publisher: &fakePublisher{},
		logg:      logger.New(logger.Options{ServiceName: "pubsub-test", Output: io.Discard}),
		now:       time.Now,
	}
	if err := notifier.NotifyAnchored(context.Background(), nil, "ref"); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestTopicNames(t *testing.T) {
	names := topicNames(config.PubSubConfig{AnchorTopic: " fx-anchor-events "})
	if len(names) != 1 || names[0] != "fx-anchor-events" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(topicNames(config.PubSubConfig{AnchorTopic: "  "})) != 0 {
		t.Fatalf("expected blank topic filtered out")
	}
}
