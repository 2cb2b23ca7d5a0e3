package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ReservationSweepJobParams configure the reservation expiry sweep.
type ReservationSweepJobParams struct {
	Engine expirySweeper
	Logger *logger.Logger
}

// ReservationSweepJob releases holds whose payment window has lapsed so the
// parts return to the free pool.
type ReservationSweepJob struct {
	engine expirySweeper
	logg   *logger.Logger
	now    func() time.Time
}

// NewReservationSweepJob builds the sweep job.
func NewReservationSweepJob(params ReservationSweepJobParams) (*ReservationSweepJob, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("reservation engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ReservationSweepJob{
		engine: params.Engine,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *ReservationSweepJob) Name() string { return "reservation-expiry-sweep" }

// Run releases every reservation past its hold window.
func (j *ReservationSweepJob) Run(ctx context.Context) error {
	released, err := j.engine.SweepExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", released), "expired reservations released")
	}
	return nil
}
