package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/internal/payments"
	"github.com/fraxionlabs/fraxion-backend/internal/reservation"
	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/types"
)

type identityRates struct{}

func (identityRates) ConvertCents(_ context.Context, cents int64, _ enums.Currency) (decimal.Decimal, error) {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)), nil
}

type fakeVerifier struct {
	err   error
	calls int
	last  payments.VerifyInput
}

func (v *fakeVerifier) Verify(_ context.Context, input payments.VerifyInput) error {
	v.calls++
	v.last = input
	return v.err
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	flags    *anchor.Flags
	verifier *fakeVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Part{},
		&models.Listing{},
		&models.Reservation{},
		&models.LedgerRecord{},
		&models.SequenceCounter{},
		&models.AnchorBacklogItem{},
		&models.SystemFlag{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	engine, err := reservation.NewEngine(reservation.EngineParams{
		DB:           db,
		Reservations: reservation.NewRepository(db),
		Listings:     listings.NewRepository(db),
		Inventory:    inventory.NewRepository(db),
		Rates:        identityRates{},
		Logger:       logg,
		HoldWindow:   15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	flags, err := anchor.NewFlags(db, logg, 0)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	verifier := &fakeVerifier{}
	svc, err := NewService(ServiceParams{
		DB:           db,
		Engine:       engine,
		Reservations: reservation.NewRepository(db),
		Listings:     listings.NewRepository(db),
		Inventory:    inventory.NewRepository(db),
		Ledger:       ledgerSvc,
		Verifier:     verifier,
		Flags:        flags,
		Backlog:      anchor.NewBacklogRepository(db),
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &fixture{db: db, svc: svc, flags: flags, verifier: verifier}
}

func (f *fixture) seedListing(t *testing.T, quantity int) *models.Listing {
	t.Helper()
	assetID, owner := uuid.New(), uuid.New()
	listing := &models.Listing{
		ID:             uuid.New(),
		Kind:           enums.AggregateKindListing,
		AssetID:        assetID,
		Owner:          owner,
		UnitPriceCents: 1000,
		RemainingQty:   quantity,
		PayoutAddresses: types.PayoutAddresses{
			enums.CurrencyUSD: "seller-usd",
		},
		Status: enums.ListingStatusActive,
	}
	if err := f.db.Create(listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	for seq := 1; seq <= quantity; seq++ {
		lockRef := listing.ID
		part := models.Part{
			ID:             inventory.PartID(assetID, seq),
			AssetID:        assetID,
			SequenceNumber: seq,
			Owner:          owner,
			LockRef:        &lockRef,
		}
		if err := f.db.Create(&part).Error; err != nil {
			t.Fatalf("seed part %d: %v", seq, err)
		}
	}
	return listing
}

func (f *fixture) seedFreeParts(t *testing.T, assetID, owner uuid.UUID, count int) {
	t.Helper()
	for seq := 1; seq <= count; seq++ {
		part := models.Part{
			ID:             inventory.PartID(assetID, seq),
			AssetID:        assetID,
			SequenceNumber: seq,
			Owner:          owner,
		}
		if err := f.db.Create(&part).Error; err != nil {
			t.Fatalf("seed part %d: %v", seq, err)
		}
	}
}

func (f *fixture) reserve(t *testing.T, listing *models.Listing, quantity int) *models.Reservation {
	t.Helper()
	held, err := f.svc.Reserve(context.Background(), reservation.ReserveInput{
		ListingID:    listing.ID,
		Holder:       uuid.New(),
		Quantity:     quantity,
		Currency:     enums.CurrencyUSD,
		BuyerAddress: "buyer-usd",
	}, "signer-key", "sig-bytes")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return held
}

func TestReserveAppendsReserveRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	listing := f.seedListing(t, 5)
	f.reserve(t, listing, 2)

	var record models.LedgerRecord
	if err := f.db.Where("type = ?", enums.LedgerRecordTypeReserve).Take(&record).Error; err != nil {
		t.Fatalf("reserve record missing: %v", err)
	}
	if record.Quantity == nil || *record.Quantity != 2 {
		t.Fatalf("reserve record quantity mismatch: %v", record.Quantity)
	}
	if err := ledger.Verify(&record); err != nil {
		t.Fatalf("record failed verification: %v", err)
	}
}

func TestReserveRejectedWhileDegraded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	listing := f.seedListing(t, 5)
	if err := f.flags.SetDegraded(context.Background(), "anchor outage"); err != nil {
		t.Fatalf("set degraded: %v", err)
	}

	_, err := f.svc.Reserve(context.Background(), reservation.ReserveInput{
		ListingID:    listing.ID,
		Holder:       uuid.New(),
		Quantity:     1,
		Currency:     enums.CurrencyUSD,
		BuyerAddress: "buyer-usd",
	}, "signer-key", "sig-bytes")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDegraded) {
		t.Fatalf("expected degraded rejection, got %v", err)
	}
}

func TestFinalizeTransfersPartsToBuyer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, 2)
	held := f.reserve(t, listing, 2)

	record, err := f.svc.Finalize(ctx, FinalizeInput{
		ReservationID: held.ID,
		PaymentRef:    "pay-1",
		Signer:        "signer-key",
		Signature:     "sig-bytes",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if record.Type != enums.LedgerRecordTypeSale {
		t.Fatalf("expected sale record, got %s", record.Type)
	}
	if f.verifier.last.Sender != "buyer-usd" {
		t.Fatalf("expected buyer address passed to verification, got %q", f.verifier.last.Sender)
	}
	if record.PaymentRef == nil || *record.PaymentRef != "pay-1" {
		t.Fatalf("sale record missing payment ref")
	}
	if err := ledger.Verify(record); err != nil {
		t.Fatalf("record failed verification: %v", err)
	}

	var owned int64
	err = f.db.Model(&models.Part{}).
		Where("owner = ? AND lock_ref IS NULL AND hold_ref IS NULL", held.Holder).
		Count(&owned).Error
	if err != nil {
		t.Fatalf("count owned: %v", err)
	}
	if owned != 2 {
		t.Fatalf("expected buyer to own 2 free parts, got %d", owned)
	}

	if remaining, err := reservation.NewRepository(f.db).FindByID(ctx, held.ID); err != nil || remaining != nil {
		t.Fatalf("reservation should be gone, got %v err %v", remaining, err)
	}

	stored, err := listings.NewRepository(f.db).FindByID(ctx, listing.ID)
	if err != nil {
		t.Fatalf("find listing: %v", err)
	}
	if stored.Status != enums.ListingStatusSoldOut {
		t.Fatalf("expected sold_out, got %s", stored.Status)
	}
}

func TestFinalizePaymentFailuresLeaveHoldIntact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, 3)
	held := f.reserve(t, listing, 2)

	cases := []struct {
		name string
		err  error
		code pkgerrors.Code
	}{
		{"pending", pkgerrors.New(pkgerrors.CodePaymentPending, "not confirmed"), pkgerrors.CodePaymentPending},
		{"mismatch", pkgerrors.New(pkgerrors.CodePaymentMismatch, "amount off"), pkgerrors.CodePaymentMismatch},
	}
	for _, tc := range cases {
		f.verifier.err = tc.err
		_, err := f.svc.Finalize(ctx, FinalizeInput{
			ReservationID: held.ID,
			PaymentRef:    "pay-1",
			Signer:        "signer-key",
			Signature:     "sig-bytes",
		})
		if !pkgerrors.IsCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}

		parts, listErr := inventory.NewRepository(f.db).ListByHoldRef(ctx, held.ID)
		if listErr != nil || len(parts) != 2 {
			t.Fatalf("%s: hold disturbed by failed finalize: %d parts, err %v", tc.name, len(parts), listErr)
		}
	}

	// the payment eventually settles and finalize succeeds
	f.verifier.err = nil
	if _, err := f.svc.Finalize(ctx, FinalizeInput{
		ReservationID: held.ID,
		PaymentRef:    "pay-1",
		Signer:        "signer-key",
		Signature:     "sig-bytes",
	}); err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
}

func TestFinalizeReleasedReservationNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, 2)
	held := f.reserve(t, listing, 1)

	if err := f.svc.Cancel(ctx, held.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := f.svc.Finalize(ctx, FinalizeInput{
		ReservationID: held.ID,
		PaymentRef:    "pay-1",
		Signer:        "signer-key",
		Signature:     "sig-bytes",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.verifier.calls != 0 {
		t.Fatalf("payment verified for a dead reservation")
	}
}

func TestGiftTransfersOwnershipAndRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	assetID, from, to := uuid.New(), uuid.New(), uuid.New()
	f.seedFreeParts(t, assetID, from, 3)

	record, err := f.svc.Gift(ctx, GiftInput{
		AssetID:   assetID,
		From:      from,
		To:        to,
		Quantity:  2,
		Signer:    "signer-key",
		Signature: "sig-bytes",
	})
	if err != nil {
		t.Fatalf("gift: %v", err)
	}
	if record.Type != enums.LedgerRecordTypeGift {
		t.Fatalf("expected gift record, got %s", record.Type)
	}

	var owned int64
	if err := f.db.Model(&models.Part{}).Where("owner = ?", to).Count(&owned).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if owned != 2 {
		t.Fatalf("expected recipient to own 2 parts, got %d", owned)
	}
}

func TestGiftRejectsSelfTransfer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	principal := uuid.New()
	_, err := f.svc.Gift(context.Background(), GiftInput{
		AssetID:   uuid.New(),
		From:      principal,
		To:        principal,
		Quantity:  1,
		Signer:    "signer-key",
		Signature: "sig-bytes",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConsumeTransfersPartsToProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	assetID, owner, provider := uuid.New(), uuid.New(), uuid.New()
	f.seedFreeParts(t, assetID, owner, 3)

	record, err := f.svc.Consume(ctx, ConsumeInput{
		AssetID:   assetID,
		Owner:     owner,
		Provider:  provider,
		Quantity:  2,
		Signer:    "signer-key",
		Signature: "sig-bytes",
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.Type != enums.LedgerRecordTypeConsume {
		t.Fatalf("expected consume record, got %s", record.Type)
	}
	if record.ToPrincipal == nil || *record.ToPrincipal != provider {
		t.Fatalf("consume record should name the provider, got %v", record.ToPrincipal)
	}

	// redemption transfers ownership; no part ever leaves circulation
	var total, providerOwned int64
	if err := f.db.Model(&models.Part{}).Where("asset_id = ?", assetID).Count(&total).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected all 3 parts to survive redemption, got %d", total)
	}
	err = f.db.Model(&models.Part{}).
		Where("owner = ? AND lock_ref IS NULL AND hold_ref IS NULL", provider).
		Count(&providerOwned).Error
	if err != nil {
		t.Fatalf("count provider parts: %v", err)
	}
	if providerOwned != 2 {
		t.Fatalf("expected provider to own 2 free parts, got %d", providerOwned)
	}
}

func TestConsumeRequiresDistinctProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	principal := uuid.New()
	_, err := f.svc.Consume(context.Background(), ConsumeInput{
		AssetID:   uuid.New(),
		Owner:     principal,
		Provider:  principal,
		Quantity:  1,
		Signer:    "signer-key",
		Signature: "sig-bytes",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelAllowedWhileDegraded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	listing := f.seedListing(t, 3)
	held := f.reserve(t, listing, 2)

	if err := f.flags.SetDegraded(ctx, "anchor outage"); err != nil {
		t.Fatalf("set degraded: %v", err)
	}

	// releasing inventory stays available during an anchor outage
	if err := f.svc.Cancel(ctx, held.ID); err != nil {
		t.Fatalf("cancel while degraded: %v", err)
	}

	var stillHeld int64
	if err := f.db.Model(&models.Part{}).Where("hold_ref = ?", held.ID).Count(&stillHeld).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if stillHeld != 0 {
		t.Fatalf("expected hold released, %d parts still held", stillHeld)
	}
}

func TestStatusReportsDegradedAndBacklog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Degraded || status.PendingAnchors != 0 {
		t.Fatalf("fresh system should be healthy, got %+v", status)
	}

	if err := f.flags.SetDegraded(ctx, "anchor outage"); err != nil {
		t.Fatalf("set degraded: %v", err)
	}
	status, err = f.svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Degraded || status.Reason == nil {
		t.Fatalf("expected degraded status with reason, got %+v", status)
	}
}
