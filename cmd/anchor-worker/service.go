package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/metrics"
)

const (
	defaultPollMs = 2000
	maxBackoff    = 30 * time.Second
	jitterWindow  = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type pinger interface {
	Ping(context.Context) error
}

type backlogProcessor interface {
	ReassertOnStartup(ctx context.Context) error
	ProcessBatch(ctx context.Context) (int, error)
}

type pendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type degradedReader interface {
	Status(ctx context.Context) (anchor.FlagStatus, error)
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        pinger
	Processor backlogProcessor
	Backlog   pendingCounter
	Flags     degradedReader
	Metrics   *metrics.AnchorMetrics
}

// Service drains the anchor backlog on a poll loop. Batches run back to
// back while work remains; an error widens the sleep up to maxBackoff.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           pinger
	processor    backlogProcessor
	backlog      pendingCounter
	flags        degradedReader
	metrics      *metrics.AnchorMetrics
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Processor == nil {
		return nil, errors.New("backlog processor is required")
	}
	if params.Backlog == nil {
		return nil, errors.New("backlog repository is required")
	}
	if params.Flags == nil {
		return nil, errors.New("flag service is required")
	}

	pollMs := params.Config.Anchor.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		processor:    params.Processor,
		backlog:      params.Backlog,
		flags:        params.Flags,
		metrics:      params.Metrics,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	if err := s.processor.ReassertOnStartup(ctx); err != nil {
		s.logg.Error(ctx, "failed to reassert degraded state", err)
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "anchor worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processor.ProcessBatch(ctx)
		s.observe(ctx)
		if err != nil {
			s.logg.Error(ctx, "anchor backlog batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed > 0 {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// observe refreshes the backlog depth and degraded gauges after each pass.
func (s *Service) observe(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if pending, err := s.backlog.CountPending(ctx); err == nil {
		s.metrics.SetPending(pending)
	}
	if status, err := s.flags.Status(ctx); err == nil {
		s.metrics.SetDegraded(status.Enabled)
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	next := current * 2
	if next < base {
		next = base
	}
	if next > max {
		next = max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
