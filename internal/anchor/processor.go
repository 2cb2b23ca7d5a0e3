package anchor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// ProcessorParams wires a Processor.
type ProcessorParams struct {
	DB        *gorm.DB
	Client    Client
	Ledger    ledger.Repository
	Backlog   BacklogRepository
	Flags     *Flags
	Logger    *logger.Logger
	Notifier  Notifier // optional
	BatchSize int
}

// Processor drains the anchor backlog. Each pass retries pending items
// oldest-first; a pass that finds the backlog empty clears the degraded
// toggle, so admission only resumes once every deferred record is anchored.
type Processor struct {
	db        *gorm.DB
	client    Client
	ledger    ledger.Repository
	backlog   BacklogRepository
	flags     *Flags
	logg      *logger.Logger
	notifier  Notifier
	batchSize int
}

// NewProcessor validates dependencies and returns a Processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.DB == nil {
		return nil, errors.New("database is required")
	}
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
	batch := params.BatchSize
	if batch <= 0 {
		batch = 25
	}
	return &Processor{
		db:        params.DB,
		client:    params.Client,
		ledger:    params.Ledger,
		backlog:   params.Backlog,
		flags:     params.Flags,
		logg:      params.Logger,
		notifier:  params.Notifier,
		batchSize: batch,
	}, nil
}

// ProcessBatch retries one batch of pending backlog items and reports how
// many were attempted. Item failures are aggregated, not fatal: one bad
// record never blocks the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	items, err := p.backlog.FetchPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending backlog: %w", err)
	}

	if len(items) == 0 {
		if err := p.clearIfDegraded(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var errs error
	for _, item := range items {
		if err := p.retryItem(ctx, item.RecordID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %s: %w", item.RecordID, err))
		}
	}
	return len(items), errs
}

// retryItem re-submits one deferred record. The previous-anchor pointer is
// re-resolved from the ledger at retry time; it may have advanced past the
// value captured when the item was queued, and the anchor must always link
// to the most recently anchored record.
func (p *Processor) retryItem(ctx context.Context, recordID string) error {
	record, err := p.ledger.FindByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("ledger record missing for backlog item")
	}

	logCtx := p.logg.WithRecordID(ctx, record.ID)
	logCtx = p.logg.WithField(logCtx, "sequence_number", record.SequenceNumber)

	if record.AnchorRef != nil {
		// anchored through another path; just retire the backlog item
		return p.backlog.MarkSuccess(ctx, record.ID)
	}

	currentPrevRef, err := ledger.LatestAnchorRef(ctx, p.db)
	if err != nil {
		return err
	}

	payload, err := ledger.WireBytes(record)
	if err != nil {
		return err
	}

	anchorRef, err := p.client.Submit(ctx, payload, record.SequenceNumber, currentPrevRef)
	if err != nil {
		if markErr := p.backlog.MarkFailure(ctx, record.ID, err); markErr != nil {
			return multierr.Append(err, markErr)
		}
		p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "backlog retry failed")
		return err
	}

	if err := p.ledger.SetAnchorRef(ctx, record.ID, anchorRef); err != nil {
		return err
	}
	if err := p.backlog.MarkSuccess(ctx, record.ID); err != nil {
		return err
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyAnchored(logCtx, record, anchorRef); err != nil {
			p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "anchored event notification failed")
		}
	}
	p.logg.Info(p.logg.WithField(logCtx, "anchor_ref", anchorRef), "backlog item anchored")
	return nil
}

func (p *Processor) clearIfDegraded(ctx context.Context) error {
	status, err := p.flags.Status(ctx)
	if err != nil {
		return err
	}
	if !status.Enabled {
		return nil
	}
	return p.flags.Clear(ctx)
}

// ReassertOnStartup re-enables the degraded toggle when pending backlog
// items survived a restart, before the first drain pass runs.
func (p *Processor) ReassertOnStartup(ctx context.Context) error {
	pending, err := p.backlog.CountPending(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		return nil
	}
	reason := fmt.Sprintf("%d anchor submissions pending at startup", pending)
	return p.flags.SetDegraded(ctx, reason)
}
