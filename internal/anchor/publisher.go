package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// Notifier broadcasts successfully anchored records to downstream consumers.
type Notifier interface {
	NotifyAnchored(ctx context.Context, record *models.LedgerRecord, anchorRef string) error
}

// PublisherParams wires a Publisher.
type PublisherParams struct {
	Client            Client
	Ledger            ledger.Repository
	Backlog           BacklogRepository
	Flags             *Flags
	Logger            *logger.Logger
	Notifier          Notifier // optional
	DegradedThreshold int
	DegradedWindow    time.Duration
}

// Publisher submits committed ledger records to the external anchor. A
// failed submission never rolls back the record; it lands on the backlog
// instead, and sustained failure flips the degraded toggle.
type Publisher struct {
	client    Client
	ledger    ledger.Repository
	backlog   BacklogRepository
	flags     *Flags
	logg      *logger.Logger
	notifier  Notifier
	threshold int
	window    time.Duration
}

// NewPublisher validates dependencies and returns a Publisher.
func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Client == nil {
		return nil, errors.New("anchor client is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger repository is required")
	}
	if params.Backlog == nil {
		return nil, errors.New("backlog repository is required")
	}
	if params.Flags == nil {
		return nil, errors.New("flag service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	threshold := params.DegradedThreshold
	if threshold <= 0 {
		threshold = 3
	}
	window := params.DegradedWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Publisher{
		client:    params.Client,
		ledger:    params.Ledger,
		backlog:   params.Backlog,
		flags:     params.Flags,
		logg:      params.Logger,
		notifier:  params.Notifier,
		threshold: threshold,
		window:    window,
	}, nil
}

// Publish submits one committed record. On success the anchor ref is stored
// against the record; on failure the record is enqueued for retry and the
// returned error carries a dependency code so callers can report partial
// success without failing the business operation.
func (p *Publisher) Publish(ctx context.Context, record *models.LedgerRecord) error {
	if record == nil {
		return errors.New("record required")
	}

	payload, err := ledger.WireBytes(record)
	if err != nil {
		return err
	}

	logCtx := p.logg.WithRecordID(ctx, record.ID)
	logCtx = p.logg.WithField(logCtx, "sequence_number", record.SequenceNumber)

	anchorRef, err := p.client.Submit(ctx, payload, record.SequenceNumber, record.PreviousAnchorRef)
	if err != nil {
		return p.handleFailure(logCtx, record, err)
	}

	if err := p.ledger.SetAnchorRef(ctx, record.ID, anchorRef); err != nil {
		return err
	}
	p.notifyAnchored(logCtx, record, anchorRef)
	p.logg.Info(p.logg.WithField(logCtx, "anchor_ref", anchorRef), "ledger record anchored")
	return nil
}

func (p *Publisher) handleFailure(ctx context.Context, record *models.LedgerRecord, cause error) error {
	if err := p.backlog.Enqueue(ctx, record, cause); err != nil {
		return fmt.Errorf("enqueue backlog %s: %w", record.ID, err)
	}
	p.logg.Warn(p.logg.WithField(ctx, "error", cause.Error()), "anchor submission failed, queued for retry")

	recent, err := p.backlog.CountPendingSince(ctx, time.Now().Add(-p.window))
	if err != nil {
		return fmt.Errorf("count recent backlog: %w", err)
	}
	if recent >= int64(p.threshold) {
		reason := fmt.Sprintf("%d anchor submissions failed within %s", recent, p.window)
		if err := p.flags.SetDegraded(ctx, reason); err != nil {
			return fmt.Errorf("set degraded flag: %w", err)
		}
	}

	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "anchor submission deferred to backlog")
}

func (p *Publisher) notifyAnchored(ctx context.Context, record *models.LedgerRecord, anchorRef string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyAnchored(ctx, record, anchorRef); err != nil {
		// notification is best-effort; the anchor ref is already durable
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "anchored event notification failed")
	}
}
