package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

const maxPollBackoff = 30 * time.Second

var (
	errNotVisible   = errors.New("payment not yet visible on the network")
	errStillPending = errors.New("payment found but not settled")
)

// VerifyInput describes the payment an off-band buyer claims to have made.
// Sender is optional; when set, the settled payment must originate from it.
type VerifyInput struct {
	PaymentRef     string
	Address        string
	Sender         string
	Currency       enums.Currency
	ExpectedAmount decimal.Decimal
}

// Verifier polls the payment network until the referenced transaction
// settles or the attempt budget runs out. Verification never trusts the
// caller's word: amount, currency, and destination all come from the
// network's view of the transaction.
type Verifier struct {
	client         Client
	logg           *logger.Logger
	maxAttempts    uint64
	initialBackoff time.Duration
	toleranceBPS   int64
}

// NewVerifier wires a verifier from config.
func NewVerifier(client Client, logg *logger.Logger, cfg config.PaymentVerifyConfig) (*Verifier, error) {
	if client == nil {
		return nil, errors.New("payment client is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	toleranceBPS := int64(cfg.ToleranceBPS)
	if toleranceBPS <= 0 {
		toleranceBPS = 1
	}
	return &Verifier{
		client:         client,
		logg:           logg,
		maxAttempts:    uint64(maxAttempts),
		initialBackoff: backoff,
		toleranceBPS:   toleranceBPS,
	}, nil
}

// Tolerance returns the acceptable deviation between expected and observed
// amounts: a small relative slack for conversion rounding, floored at one
// minimum currency unit so tiny payments are not impossible to match.
func Tolerance(expected decimal.Decimal, currency enums.Currency, bps int64) decimal.Decimal {
	relative := expected.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	minimum := currency.MinimumUnit()
	if relative.LessThan(minimum) {
		return minimum
	}
	return relative
}

// Verify blocks until the payment settles and matches, the attempt budget
// is exhausted (payment-pending error), or a settled payment fails to match
// (payment-mismatch error). The two failures are distinct: a pending result
// may resolve on a later finalize attempt, a mismatch never will.
func (v *Verifier) Verify(ctx context.Context, input VerifyInput) error {
	if input.PaymentRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment ref is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnsupportedCurrency,
			fmt.Sprintf("currency %q is not supported", input.Currency))
	}
	if input.ExpectedAmount.Sign() <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expected amount must be positive")
	}

	tolerance := Tolerance(input.ExpectedAmount, input.Currency, v.toleranceBPS)
	logCtx := v.logg.WithField(ctx, "payment_ref", input.PaymentRef)

	backoff := retry.WithCappedDuration(maxPollBackoff, retry.NewExponential(v.initialBackoff))
	backoff = retry.WithMaxRetries(v.maxAttempts-1, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		payment, err := v.client.FetchPayment(ctx, input.PaymentRef)
		if err != nil {
			v.logg.Warn(v.logg.WithField(logCtx, "error", err.Error()), "payment lookup failed, will retry")
			return retry.RetryableError(err)
		}
		if payment == nil {
			return retry.RetryableError(errNotVisible)
		}

		switch payment.Status {
		case PaymentStatusPending:
			return retry.RetryableError(errStillPending)
		case PaymentStatusSettled:
			return v.match(payment, input, tolerance)
		case PaymentStatusFailed:
			return pkgerrors.New(pkgerrors.CodePaymentMismatch,
				fmt.Sprintf("payment %s failed on the network", input.PaymentRef))
		default:
			return retry.RetryableError(fmt.Errorf("unknown payment status %q", payment.Status))
		}
	})
	if err == nil {
		v.logg.Info(logCtx, "payment verified")
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodePaymentMismatch) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentPending, err,
		fmt.Sprintf("payment %s not confirmed within the verification window", input.PaymentRef))
}

func (v *Verifier) match(payment *Payment, input VerifyInput, tolerance decimal.Decimal) error {
	if payment.Currency != input.Currency {
		return pkgerrors.New(pkgerrors.CodePaymentMismatch,
			fmt.Sprintf("payment settled in %s, expected %s", payment.Currency, input.Currency))
	}
	if input.Address != "" && payment.ToAddress != input.Address {
		return pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment sent to an unexpected address")
	}
	if input.Sender != "" && payment.FromAddress != input.Sender {
		return pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment sent from an unexpected address")
	}
	// the bound is one-sided: overpayment settles the reservation just as well
	if payment.Amount.LessThan(input.ExpectedAmount.Sub(tolerance)) {
		return pkgerrors.New(pkgerrors.CodePaymentMismatch,
			fmt.Sprintf("payment amount %s is below expected %s minus tolerance %s",
				payment.Amount, input.ExpectedAmount, tolerance))
	}
	return nil
}
