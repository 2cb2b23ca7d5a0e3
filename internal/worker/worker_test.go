package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:worker_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.LedgerRecord{}, &models.ExportCursor{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedRecord(t *testing.T, db *gorm.DB, seq int64, anchored bool) *models.LedgerRecord {
	t.Helper()
	record, err := ledger.BuildRecord(
		enums.LedgerRecordTypeIssue,
		seq,
		time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		"registry",
		"sig",
		nil,
		ledger.Fields{},
	)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	if anchored {
		ref := "anchor-ref"
		record.AnchorRef = &ref
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("insert record: %v", err)
	}
	return record
}

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	for _, job := range registry.Jobs() {
		if job.(*testJob).runs != 1 {
			t.Fatalf("expected job %s to run once, ran %d", job.Name(), job.(*testJob).runs)
		}
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "noop"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while lock held elsewhere, got %d", job.runs)
	}
}

func TestRegistryReturnsDefensiveCopy(t *testing.T) {
	registry := NewRegistry(&testJob{name: "one"})
	jobs := registry.Jobs()
	jobs[0] = &testJob{name: "swapped"}
	if registry.Jobs()[0].Name() != "one" {
		t.Fatalf("registry contents mutated through returned slice")
	}
}

type fakeSweeper struct {
	released int
	err      error
	calls    int
}

func (f *fakeSweeper) SweepExpired(context.Context, time.Time) (int, error) {
	f.calls++
	return f.released, f.err
}

func TestReservationSweepJobReportsSweepErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job, err := NewReservationSweepJob(ReservationSweepJobParams{Engine: sweeper, Logger: newTestLogger()})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected sweep error to propagate")
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", sweeper.calls)
	}

	sweeper.err = nil
	sweeper.released = 2
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected clean run, got %v", err)
	}
}

func TestIntegrityAuditDetectsTamperedRecord(t *testing.T) {
	db := newTestDB(t)
	seedRecord(t, db, 1, false)
	tampered := seedRecord(t, db, 2, false)
	if err := db.Model(&models.LedgerRecord{}).
		Where("id = ?", tampered.ID).
		Update("signer", "someone-else").Error; err != nil {
		t.Fatalf("tamper record: %v", err)
	}

	job, err := NewIntegrityAuditJob(IntegrityAuditJobParams{
		Records: ledger.NewRepository(db),
		Logger:  newTestLogger(),
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected audit to flag the tampered record")
	}
}

func TestIntegrityAuditWrapsCursorAfterFullPass(t *testing.T) {
	db := newTestDB(t)
	seedRecord(t, db, 1, false)
	seedRecord(t, db, 2, false)

	job, err := NewIntegrityAuditJob(IntegrityAuditJobParams{
		Records:   ledger.NewRepository(db),
		Logger:    newTestLogger(),
		BatchSize: 10,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("audit pass: %v", err)
	}
	if job.cursor != 1 {
		t.Fatalf("expected cursor to wrap to 1 after short batch, got %d", job.cursor)
	}
}

type fakeInserter struct {
	rows  [][]any
	table string
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	if f.err != nil {
		return f.err
	}
	f.table = table
	f.rows = append(f.rows, rows)
	return nil
}

func TestLedgerExportOnlyShipsAnchoredRecords(t *testing.T) {
	db := newTestDB(t)
	seedRecord(t, db, 1, true)
	seedRecord(t, db, 2, false)
	anchored := seedRecord(t, db, 3, true)

	inserter := &fakeInserter{}
	job, err := NewLedgerExportJob(LedgerExportJobParams{
		DB:       db,
		Records:  ledger.NewRepository(db),
		Inserter: inserter,
		Table:    "ledger_records",
		Logger:   newTestLogger(),
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("export run: %v", err)
	}

	if len(inserter.rows) != 1 || len(inserter.rows[0]) != 2 {
		t.Fatalf("expected one batch with 2 anchored rows, got %+v", inserter.rows)
	}
	if inserter.table != "ledger_records" {
		t.Fatalf("unexpected table %q", inserter.table)
	}
	last := inserter.rows[0][1].(LedgerExportRow)
	if last.RecordID != anchored.ID || last.AnchorRef != "anchor-ref" {
		t.Fatalf("unexpected final row %+v", last)
	}

	var cursor models.ExportCursor
	if err := db.Where("name = ?", ledgerExportCursorName).First(&cursor).Error; err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cursor.LastSequence != 3 {
		t.Fatalf("expected cursor at seq 3, got %d", cursor.LastSequence)
	}

	// second run starts past the cursor and finds nothing new
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second export run: %v", err)
	}
	if len(inserter.rows) != 1 {
		t.Fatalf("expected no additional batches, got %d", len(inserter.rows))
	}
}

func TestLedgerExportKeepsCursorWhenInsertFails(t *testing.T) {
	db := newTestDB(t)
	seedRecord(t, db, 1, true)

	inserter := &fakeInserter{err: errors.New("warehouse unavailable")}
	job, err := NewLedgerExportJob(LedgerExportJobParams{
		DB:       db,
		Records:  ledger.NewRepository(db),
		Inserter: inserter,
		Table:    "ledger_records",
		Logger:   newTestLogger(),
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected insert failure to surface")
	}

	var count int64
	if err := db.Model(&models.ExportCursor{}).Count(&count).Error; err != nil {
		t.Fatalf("count cursors: %v", err)
	}
	if count != 0 {
		t.Fatalf("cursor must not advance on failed insert")
	}

	inserter.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("retry export: %v", err)
	}
	if len(inserter.rows) != 1 {
		t.Fatalf("expected record exported on retry")
	}
}

type fakeRedisStore struct {
	data map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{data: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(_ context.Context, key string) (string, error) {
	value, exists := f.data[key]
	if !exists {
		return "", errors.New("missing")
	}
	return value, nil
}

func (f *fakeRedisStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestRedisLockReleaseOnlyWhenOwned(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "fx:lock:maintenance", time.Minute)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, ok=%v err=%v", ok, err)
	}

	// a second instance must not steal the lock
	other, err := NewRedisLock(store, "fx:lock:maintenance", time.Minute)
	if err != nil {
		t.Fatalf("construct second lock: %v", err)
	}
	ok, err = other.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, ok=%v err=%v", ok, err)
	}
	if err := other.Release(context.Background()); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if _, exists := store.data["fx:lock:maintenance"]; !exists {
		t.Fatalf("non-owner release must not delete the lock")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if _, exists := store.data["fx:lock:maintenance"]; exists {
		t.Fatalf("expected lock deleted after owner release")
	}
}
