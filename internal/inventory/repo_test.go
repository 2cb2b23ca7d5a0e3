package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Asset{}, &models.Part{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedPool(t *testing.T, db *gorm.DB, assetID, owner, lockRef uuid.UUID, count int) {
	t.Helper()
	for seq := 1; seq <= count; seq++ {
		lr := lockRef
		part := models.Part{
			ID:             PartID(assetID, seq),
			AssetID:        assetID,
			SequenceNumber: seq,
			Owner:          owner,
			LockRef:        &lr,
		}
		if err := db.Create(&part).Error; err != nil {
			t.Fatalf("seed part %d: %v", seq, err)
		}
	}
}

func TestClaimOneExhaustsPool(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner, lockRef := uuid.New(), uuid.New(), uuid.New()
	seedPool(t, db, assetID, owner, lockRef, 3)

	repo := NewRepository(db)
	holdRef := uuid.New()

	claimed := map[string]bool{}
	for i := 0; i < 3; i++ {
		id, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if claimed[id] {
			t.Fatalf("part %s claimed twice", id)
		}
		claimed[id] = true
	}

	if _, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientParts) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}
}

func TestClaimOneConcurrentNeverOversells(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner, lockRef := uuid.New(), uuid.New(), uuid.New()
	const pool = 5
	seedPool(t, db, assetID, owner, lockRef, pool)

	repo := NewRepository(db)

	var mu sync.Mutex
	var wg sync.WaitGroup
	wins := map[string]uuid.UUID{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			holdRef := uuid.New()
			id, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := wins[id]; dup {
				t.Errorf("part %s claimed by both %s and %s", id, prev, holdRef)
				return
			}
			wins[id] = holdRef
		}()
	}
	wg.Wait()

	if len(wins) > pool {
		t.Fatalf("claimed %d parts from a pool of %d", len(wins), pool)
	}

	var held int64
	if err := db.Model(&models.Part{}).Where("hold_ref IS NOT NULL").Count(&held).Error; err != nil {
		t.Fatalf("count held: %v", err)
	}
	if held != int64(len(wins)) {
		t.Fatalf("held count %d does not match wins %d", held, len(wins))
	}
}

func TestReleaseHoldIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner, lockRef := uuid.New(), uuid.New(), uuid.New()
	seedPool(t, db, assetID, owner, lockRef, 2)

	repo := NewRepository(db)
	holdRef := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	released, err := repo.ReleaseHold(ctx, holdRef)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}

	released, err = repo.ReleaseHold(ctx, holdRef)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released != 0 {
		t.Fatalf("second release should affect nothing, got %d", released)
	}

	free, err := repo.CountFree(ctx, lockRef)
	if err != nil {
		t.Fatalf("count free: %v", err)
	}
	if free != 2 {
		t.Fatalf("expected 2 free parts, got %d", free)
	}
}

func TestTransferHeldMovesOwnershipAndClearsLock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner, lockRef := uuid.New(), uuid.New(), uuid.New()
	seedPool(t, db, assetID, owner, lockRef, 3)

	repo := NewRepository(db)
	holdRef := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	buyer := uuid.New()
	moved, err := repo.TransferHeld(ctx, holdRef, buyer)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved != 2 {
		t.Fatalf("expected 2 transferred, got %d", moved)
	}

	var owned []models.Part
	if err := db.Where("owner = ?", buyer).Find(&owned).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected buyer to own 2 parts, got %d", len(owned))
	}
	for _, part := range owned {
		if part.LockRef != nil || part.HoldRef != nil {
			t.Fatalf("transferred part still locked/held: %+v", part)
		}
	}

	free, err := repo.CountFree(ctx, lockRef)
	if err != nil {
		t.Fatalf("count free: %v", err)
	}
	if free != 1 {
		t.Fatalf("expected 1 untouched free part, got %d", free)
	}
}

func TestIssueParts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	creator := uuid.New()

	asset, err := IssueParts(ctx, db, IssueInput{Title: "genesis piece", CreatorID: creator, TotalParts: 10})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var parts []models.Part
	if err := db.Where("asset_id = ?", asset.ID).Order("sequence_number ASC").Find(&parts).Error; err != nil {
		t.Fatalf("load parts: %v", err)
	}
	if len(parts) != 10 {
		t.Fatalf("expected 10 parts, got %d", len(parts))
	}
	for i, part := range parts {
		if part.SequenceNumber != i+1 {
			t.Fatalf("sequence gap at %d: %+v", i, part)
		}
		if part.ID != PartID(asset.ID, part.SequenceNumber) {
			t.Fatalf("part id not reproducible from immutable fields: %s", part.ID)
		}
		if part.Owner != creator || part.LockRef != nil || part.HoldRef != nil {
			t.Fatalf("unexpected initial part state: %+v", part)
		}
	}
}

func TestIssuePartsValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	_, err := IssueParts(ctx, db, IssueInput{Title: "x", CreatorID: uuid.New(), TotalParts: 0})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLockFreeAttachesExactlyQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner := uuid.New(), uuid.New()

	// unattached pool: no lock_ref yet
	for seq := 1; seq <= 5; seq++ {
		part := models.Part{
			ID:             PartID(assetID, seq),
			AssetID:        assetID,
			SequenceNumber: seq,
			Owner:          owner,
		}
		if err := db.Create(&part).Error; err != nil {
			t.Fatalf("seed part %d: %v", seq, err)
		}
	}

	repo := NewRepository(db)
	lockRef := uuid.New()

	locked, err := repo.LockFree(ctx, assetID, owner, lockRef, 3)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if len(locked) != 3 {
		t.Fatalf("expected 3 locked parts, got %d", len(locked))
	}

	free, err := repo.CountFree(ctx, lockRef)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if free != 3 {
		t.Fatalf("expected 3 attached parts, got %d", free)
	}
}

func TestLockFreeShortfallRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner := uuid.New(), uuid.New()

	for seq := 1; seq <= 2; seq++ {
		part := models.Part{
			ID:             PartID(assetID, seq),
			AssetID:        assetID,
			SequenceNumber: seq,
			Owner:          owner,
		}
		if err := db.Create(&part).Error; err != nil {
			t.Fatalf("seed part %d: %v", seq, err)
		}
	}

	repo := NewRepository(db)
	lockRef := uuid.New()

	if _, err := repo.LockFree(ctx, assetID, owner, lockRef, 3); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientParts) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	// the two parts locked before the shortfall must be free again
	var attached int64
	if err := db.Model(&models.Part{}).Where("lock_ref = ?", lockRef).Count(&attached).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if attached != 0 {
		t.Fatalf("expected rollback to detach partial locks, %d still attached", attached)
	}
}

func TestReleaseLockSkipsHeldParts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	assetID, owner, lockRef := uuid.New(), uuid.New(), uuid.New()
	seedPool(t, db, assetID, owner, lockRef, 3)

	repo := NewRepository(db)
	holdRef := uuid.New()
	if _, err := repo.ClaimOne(ctx, assetID, owner, lockRef, holdRef); err != nil {
		t.Fatalf("claim: %v", err)
	}

	released, err := repo.ReleaseLock(ctx, lockRef)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 unheld parts released, got %d", released)
	}

	held, err := repo.ListByHoldRef(ctx, holdRef)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(held) != 1 || held[0].LockRef == nil {
		t.Fatalf("held part must keep its lock until the reservation resolves")
	}
}
