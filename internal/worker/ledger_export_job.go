package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

const (
	defaultExportBatchSize = 500
	ledgerExportCursorName = "ledger_export"
)

type anchoredLister interface {
	ListAnchoredAfter(ctx context.Context, afterSeq, limit int64) ([]models.LedgerRecord, error)
}

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// LedgerExportRow is the warehouse projection of one anchored ledger record.
type LedgerExportRow struct {
	RecordID          string    `bigquery:"record_id"`
	Type              string    `bigquery:"type"`
	SequenceNumber    int64     `bigquery:"sequence_number"`
	Timestamp         time.Time `bigquery:"timestamp"`
	AggregateID       string    `bigquery:"aggregate_id"`
	AssetID           string    `bigquery:"asset_id"`
	Quantity          int64     `bigquery:"quantity"`
	FromPrincipal     string    `bigquery:"from_principal"`
	ToPrincipal       string    `bigquery:"to_principal"`
	PaymentRef        string    `bigquery:"payment_ref"`
	Currency          string    `bigquery:"currency"`
	Amount            string    `bigquery:"amount"`
	Signer            string    `bigquery:"signer"`
	PreviousAnchorRef string    `bigquery:"previous_anchor_ref"`
	AnchorRef         string    `bigquery:"anchor_ref"`
	ExportedAt        time.Time `bigquery:"exported_at"`
}

// LedgerExportJobParams configure the warehouse export.
type LedgerExportJobParams struct {
	DB        *gorm.DB
	Records   anchoredLister
	Inserter  rowInserter
	Table     string
	Logger    *logger.Logger
	BatchSize int64
}

// LedgerExportJob streams anchored ledger records into the analytics
// warehouse. Only anchored records are exported so the warehouse never sees
// a record whose external receipt could still fail.
type LedgerExportJob struct {
	db        *gorm.DB
	records   anchoredLister
	inserter  rowInserter
	table     string
	logg      *logger.Logger
	batchSize int64
	now       func() time.Time
}

// NewLedgerExportJob builds the export job.
func NewLedgerExportJob(params LedgerExportJobParams) (*LedgerExportJob, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Records == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Inserter == nil {
		return nil, fmt.Errorf("row inserter required")
	}
	if params.Table == "" {
		return nil, fmt.Errorf("export table required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExportBatchSize
	}
	return &LedgerExportJob{
		db:        params.DB,
		records:   params.Records,
		inserter:  params.Inserter,
		table:     params.Table,
		logg:      params.Logger,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *LedgerExportJob) Name() string { return "ledger-warehouse-export" }

// Run exports the next batch of anchored records past the durable cursor.
// The cursor advances only after the insert succeeds, so a failed insert is
// retried on the next cycle.
func (j *LedgerExportJob) Run(ctx context.Context) error {
	cursor, err := j.loadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load export cursor: %w", err)
	}

	records, err := j.records.ListAnchoredAfter(ctx, cursor, j.batchSize)
	if err != nil {
		return fmt.Errorf("list anchored records after seq %d: %w", cursor, err)
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([]any, 0, len(records))
	for i := range records {
		rows = append(rows, exportRow(&records[i], j.now()))
	}
	if err := j.inserter.InsertRows(ctx, j.table, rows); err != nil {
		return fmt.Errorf("insert export rows: %w", err)
	}

	last := records[len(records)-1].SequenceNumber
	if err := j.saveCursor(ctx, last); err != nil {
		return fmt.Errorf("advance export cursor: %w", err)
	}

	exportCtx := j.logg.WithField(ctx, "exported", len(records))
	j.logg.Info(j.logg.WithField(exportCtx, "last_sequence", last), "ledger records exported")
	return nil
}

func (j *LedgerExportJob) loadCursor(ctx context.Context) (int64, error) {
	var cursor models.ExportCursor
	err := j.db.WithContext(ctx).
		Where("name = ?", ledgerExportCursorName).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cursor.LastSequence, nil
}

func (j *LedgerExportJob) saveCursor(ctx context.Context, lastSequence int64) error {
	cursor := models.ExportCursor{
		Name:         ledgerExportCursorName,
		LastSequence: lastSequence,
	}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sequence", "updated_at"}),
		}).
		Create(&cursor).Error
}

func exportRow(record *models.LedgerRecord, exportedAt time.Time) LedgerExportRow {
	row := LedgerExportRow{
		RecordID:       record.ID,
		Type:           string(record.Type),
		SequenceNumber: record.SequenceNumber,
		Timestamp:      record.Timestamp.UTC(),
		Signer:         record.Signer,
		ExportedAt:     exportedAt.UTC(),
	}
	if record.AggregateID != nil {
		row.AggregateID = record.AggregateID.String()
	}
	if record.AssetID != nil {
		row.AssetID = record.AssetID.String()
	}
	if record.Quantity != nil {
		row.Quantity = int64(*record.Quantity)
	}
	if record.FromPrincipal != nil {
		row.FromPrincipal = record.FromPrincipal.String()
	}
	if record.ToPrincipal != nil {
		row.ToPrincipal = record.ToPrincipal.String()
	}
	if record.PaymentRef != nil {
		row.PaymentRef = *record.PaymentRef
	}
	if record.Currency != nil {
		row.Currency = string(*record.Currency)
	}
	if record.Amount != nil {
		row.Amount = record.Amount.String()
	}
	if record.PreviousAnchorRef != nil {
		row.PreviousAnchorRef = *record.PreviousAnchorRef
	}
	if record.AnchorRef != nil {
		row.AnchorRef = *record.AnchorRef
	}
	return row
}
