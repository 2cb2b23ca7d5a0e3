package anchor

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fraxionlabs/fraxion-backend/pkg/db/models"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// DegradedFlagName is the durable toggle row gating new reservations and
// finalizations while anchor submissions are failing.
const DegradedFlagName = "anchor_degraded"

// FlagStatus is a snapshot of the degraded toggle.
type FlagStatus struct {
	Enabled   bool
	Reason    *string
	UpdatedAt time.Time
}

// Flags reads and writes the durable degraded toggle. Reads are cached
// in-process for a short TTL so the hot admission path does not hit the
// database on every request; writes invalidate the cache immediately, so
// only other instances observe the staleness window.
type Flags struct {
	db       *gorm.DB
	logg     *logger.Logger
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    bool
	cachedAt  time.Time
	lastValue FlagStatus
}

// NewFlags builds the flag service. cacheTTL <= 0 disables caching.
func NewFlags(db *gorm.DB, logg *logger.Logger, cacheTTL time.Duration) (*Flags, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Flags{db: db, logg: logg, cacheTTL: cacheTTL}, nil
}

// IsDegraded reports whether the system currently rejects new admissions.
func (f *Flags) IsDegraded(ctx context.Context) (bool, error) {
	status, err := f.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Enabled, nil
}

// Status returns the current toggle state, served from cache when fresh.
func (f *Flags) Status(ctx context.Context) (FlagStatus, error) {
	f.mu.Lock()
	if f.cached && f.cacheTTL > 0 && time.Since(f.cachedAt) < f.cacheTTL {
		status := f.lastValue
		f.mu.Unlock()
		return status, nil
	}
	f.mu.Unlock()

	var flag models.SystemFlag
	err := f.db.WithContext(ctx).
		Where("name = ?", DegradedFlagName).
		Take(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status := FlagStatus{}
			f.store(status)
			return status, nil
		}
		return FlagStatus{}, err
	}

	status := FlagStatus{Enabled: flag.Enabled, Reason: flag.Reason, UpdatedAt: flag.UpdatedAt}
	f.store(status)
	return status, nil
}

// SetDegraded durably enables the toggle with the given reason. Idempotent.
func (f *Flags) SetDegraded(ctx context.Context, reason string) error {
	if err := f.write(ctx, true, &reason); err != nil {
		return err
	}
	logCtx := f.logg.WithField(ctx, "reason", reason)
	f.logg.Warn(logCtx, "anchor degraded mode enabled")
	return nil
}

// Clear durably disables the toggle. Callers decide when clearing is safe;
// the backlog processor only clears after a drain pass finds nothing pending.
func (f *Flags) Clear(ctx context.Context) error {
	if err := f.write(ctx, false, nil); err != nil {
		return err
	}
	f.logg.Info(ctx, "anchor degraded mode cleared")
	return nil
}

// ForceClear disables the toggle on operator request, even while backlog
// items are still pending. The backlog processor may re-assert the flag on
// its next failing pass.
func (f *Flags) ForceClear(ctx context.Context, operator string) error {
	if err := f.write(ctx, false, nil); err != nil {
		return err
	}
	f.logg.Warn(f.logg.WithField(ctx, "operator", operator), "anchor degraded mode force-cleared")
	return nil
}

func (f *Flags) write(ctx context.Context, enabled bool, reason *string) error {
	flag := models.SystemFlag{
		Name:    DegradedFlagName,
		Enabled: enabled,
		Reason:  reason,
	}
	err := f.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"enabled": enabled,
				"reason":  reason,
			}),
		}).
		Create(&flag).Error
	if err != nil {
		return err
	}
	f.invalidate()
	return nil
}

func (f *Flags) store(status FlagStatus) {
	f.mu.Lock()
	f.cached = true
	f.cachedAt = time.Now()
	f.lastValue = status
	f.mu.Unlock()
}

func (f *Flags) invalidate() {
	f.mu.Lock()
	f.cached = false
	f.mu.Unlock()
}
