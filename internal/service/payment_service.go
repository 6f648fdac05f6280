package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/gateway"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/metrics"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
)

const dedupTTL = 24 * time.Hour

type InitiatePaymentRequest struct {
	OrderID       int64           `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
}

// GatewayResult is the outcome of a charge, from the in-process gateway call
// or from the payment results topic.
type GatewayResult struct {
	IntentID      string `json:"intentId"`
	Succeeded     bool   `json:"succeeded"`
	TransactionID string `json:"transactionId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (r GatewayResult) dedupKey() string {
	outcome := "failure"
	if r.Succeeded {
		outcome = "success"
	}
	return "payment-result:" + r.IntentID + ":" + outcome
}

// PaymentService tracks payment intents and talks to the gateway. Charges
// and refunds run in the background; Close waits for them.
type PaymentService struct {
	payments  repository.PaymentRepository
	orders    *OrderService
	gateway   gateway.Gateway
	publisher events.Publisher
	dedup     idempotency.Store
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewPaymentService(payments repository.PaymentRepository, orders *OrderService, gw gateway.Gateway, publisher events.Publisher, dedup idempotency.Store, timeout time.Duration) *PaymentService {
	return &PaymentService{
		payments:  payments,
		orders:    orders,
		gateway:   gw,
		publisher: publisher,
		dedup:     dedup,
		timeout:   timeout,
	}
}

// Initiate creates an INITIATED intent for a PLACED order and starts the
// charge. The intent is returned before the gateway answers.
func (s *PaymentService) Initiate(ctx context.Context, actor Actor, req InitiatePaymentRequest) (*entity.PaymentIntent, error) {
	if req.OrderID <= 0 {
		return nil, invalid("orderId", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", "must be positive")
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, invalid("paymentMethod", "is required")
	}

	// The order lock spans the status check and the intent insert.
	unlock := s.orders.lockOrder(req.OrderID)
	defer unlock()

	order, err := s.orders.GetOrder(ctx, req.OrderID, actor)
	if err != nil {
		return nil, err
	}
	if order.Status != entity.StatusPlaced {
		return nil, conflict(order, "order %d is not awaiting payment", order.ID)
	}

	now := time.Now().UTC()
	intent, err := s.payments.Create(ctx, &entity.PaymentIntent{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Amount:        req.Amount,
		PaymentMethod: method,
		Status:        entity.PaymentInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, conflict(order, "order %d already has a payment in progress", order.ID)
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating payment intent for order %d", order.ID)
		return nil, err
	}

	logger.Info().Str("intent_id", intent.ID).Int64("order_id", order.ID).Str("amount", intent.Amount.String()).Msg("Payment initiated")

	s.wg.Add(1)
	go s.charge(*intent)

	return intent, nil
}

// charge calls the gateway with a bounded wait. A timeout is a failure.
func (s *PaymentService) charge(intent entity.PaymentIntent) {
	defer s.wg.Done()

	res := GatewayResult{IntentID: intent.ID}

	order, err := s.orders.GetOrder(context.Background(), intent.OrderID, Actor{Admin: true})
	if err == nil && order.Status != entity.StatusPlaced {
		res.Reason = fmt.Sprintf("order is %s", order.Status)
		s.applyLogged(res)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	txn, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		IntentID:      intent.ID,
		OrderID:       intent.OrderID,
		Amount:        intent.Amount,
		PaymentMethod: intent.PaymentMethod,
	})
	switch {
	case err == nil:
		res.Succeeded = true
		res.TransactionID = txn
	case errors.Is(err, context.DeadlineExceeded):
		res.Reason = "payment gateway timed out"
	default:
		res.Reason = err.Error()
	}

	s.applyLogged(res)
}

func (s *PaymentService) applyLogged(res GatewayResult) {
	if err := s.ApplyResult(context.Background(), res); err != nil {
		logger.Error().Err(err).Str("intent_id", res.IntentID).Msg("Error applying payment result")
	}
}

// ApplyResult settles an INITIATED intent. Each outcome is applied at most
// once per intent. A success that arrives after the order was cancelled, or
// after the intent already failed, is refunded.
func (s *PaymentService) ApplyResult(ctx context.Context, res GatewayResult) error {
	if res.IntentID == "" {
		return invalid("intentId", "is required")
	}

	key := res.dedupKey()
	if s.dedup != nil {
		claimed, err := s.dedup.Claim(ctx, key, dedupTTL)
		if err != nil {
			return err
		}
		if !claimed {
			logger.Info().Str("intent_id", res.IntentID).Msg("Duplicate payment result dropped")
			return nil
		}
	}

	if err := s.applyResult(ctx, res); err != nil {
		if s.dedup != nil {
			if relErr := s.dedup.Release(context.WithoutCancel(ctx), key); relErr != nil {
				logger.Error().Err(relErr).Msgf("Error releasing dedup key %s", key)
			}
		}
		return err
	}
	return nil
}

func (s *PaymentService) applyResult(ctx context.Context, res GatewayResult) error {
	if !res.Succeeded {
		failed, err := s.payments.CompareAndSetStatus(ctx, res.IntentID, entity.PaymentInitiated, entity.PaymentFailed, func(p *entity.PaymentIntent) {
			p.FailureReason = res.Reason
		})
		var stale *repository.StatusConflictError
		if errors.As(err, &stale) {
			logger.Warn().Str("intent_id", res.IntentID).Str("status", stale.Current).Msg("Ignoring failure for settled intent")
			return nil
		}
		if err != nil {
			return notFound(err, "payment intent", res.IntentID)
		}

		metrics.RecordPaymentResult(string(entity.PaymentFailed))
		logger.Warn().Str("intent_id", failed.ID).Int64("order_id", failed.OrderID).Str("reason", res.Reason).Msg("Payment failed")
		publishEvent(ctx, s.publisher, events.PaymentEvent(events.PaymentFailed, failed, res.Reason))
		return nil
	}

	captured, err := s.payments.CompareAndSetStatus(ctx, res.IntentID, entity.PaymentInitiated, entity.PaymentSucceeded, func(p *entity.PaymentIntent) {
		p.TransactionID = res.TransactionID
	})
	var stale *repository.StatusConflictError
	if errors.As(err, &stale) {
		switch entity.PaymentStatus(stale.Current) {
		case entity.PaymentFailed:
			s.refundLateCapture(ctx, res)
			return nil
		case entity.PaymentSucceeded:
			// An earlier delivery captured the intent but may not have
			// reached the order.
			intent, err := s.payments.GetByID(ctx, res.IntentID)
			if err != nil {
				return notFound(err, "payment intent", res.IntentID)
			}
			return s.settleCapture(ctx, intent)
		}
		logger.Warn().Str("intent_id", res.IntentID).Str("status", stale.Current).Msg("Ignoring success for settled intent")
		return nil
	}
	if err != nil {
		return notFound(err, "payment intent", res.IntentID)
	}
	metrics.RecordPaymentResult(string(entity.PaymentSucceeded))

	return s.settleCapture(ctx, captured)
}

// settleCapture moves the order of a SUCCEEDED intent to PAID. It is safe to
// run more than once for the same intent: only the call that wins the order
// update publishes, and only a capture for a cancelled order is refunded.
// A delivered order, or one already paid or refunding, keeps the payment.
func (s *PaymentService) settleCapture(ctx context.Context, intent *entity.PaymentIntent) error {
	_, err := s.orders.OnPaymentSucceeded(ctx, intent.OrderID)
	if err == nil {
		publishEvent(ctx, s.publisher, events.PaymentEvent(events.PaymentSuccess, intent, ""))
		return nil
	}

	var stale *repository.StatusConflictError
	if !errors.As(err, &stale) {
		logger.Error().Err(err).Bool("alert", true).Str("intent_id", intent.ID).Msgf("Payment captured but order %d not updated", intent.OrderID)
		return err
	}
	if entity.OrderStatus(stale.Current) != entity.StatusCancelled {
		logger.Info().Str("intent_id", intent.ID).Int64("order_id", intent.OrderID).Str("order_status", stale.Current).Msg("Capture already accounted for by order")
		return nil
	}

	logger.Warn().Str("intent_id", intent.ID).Int64("order_id", intent.OrderID).Msg("Order cancelled before capture was applied, refunding")
	s.refundStrandedCapture(ctx, intent)
	return nil
}

// ResumeCapture applies a SUCCEEDED intent whose order is still PLACED.
func (s *PaymentService) ResumeCapture(ctx context.Context, intent *entity.PaymentIntent) error {
	return s.settleCapture(ctx, intent)
}

// ActiveIntent returns the order's INITIATED or SUCCEEDED intent, if any.
func (s *PaymentService) ActiveIntent(ctx context.Context, orderID int64) (*entity.PaymentIntent, error) {
	intents, err := s.payments.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return repository.ActiveIntent(intents), nil
}

// Refund gives back the captured payment of an order in REFUND_PENDING and
// reports the outcome to the order saga.
func (s *PaymentService) Refund(ctx context.Context, orderID int64) error {
	ok, reason := false, "no captured payment found for order"

	intents, err := s.payments.ListForOrder(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error looking up payments to refund order %d", orderID)
		reason = "payment lookup failed: " + err.Error()
	} else if intent := repository.SucceededIntent(intents); intent != nil {
		if s.claimRefund(ctx, intent.ID) {
			ok, reason = s.refundIntent(ctx, intent)
		} else {
			reason = "refund already attempted for payment " + intent.ID
		}
	}

	_, err = s.orders.CompleteRefund(ctx, orderID, ok, reason)
	return err
}

// RequestRefund runs Refund in the background.
func (s *PaymentService) RequestRefund(orderID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Refund(context.Background(), orderID); err != nil {
			logger.Error().Err(err).Bool("alert", true).Msgf("Error refunding order %d", orderID)
		}
	}()
}

// refundIntent refunds a SUCCEEDED intent whose refund the caller has
// claimed. It reports whether the money went back and, if not, why.
func (s *PaymentService) refundIntent(ctx context.Context, intent *entity.PaymentIntent) (bool, string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	refundID, err := s.gateway.Refund(rctx, gateway.RefundRequest{
		IntentID:      intent.ID,
		OrderID:       intent.OrderID,
		TransactionID: intent.TransactionID,
		Amount:        intent.Amount,
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "refund timed out"
		}
		_, casErr := s.payments.CompareAndSetStatus(ctx, intent.ID, entity.PaymentSucceeded, entity.PaymentRefundFailed, func(p *entity.PaymentIntent) {
			p.FailureReason = reason
		})
		if casErr != nil {
			logger.Error().Err(casErr).Str("intent_id", intent.ID).Msg("Error recording failed refund")
		}
		metrics.RecordPaymentResult(string(entity.PaymentRefundFailed))
		logger.Error().Err(err).Bool("alert", true).Str("intent_id", intent.ID).Int64("order_id", intent.OrderID).Msg("Refund failed")
		return false, reason
	}

	_, err = s.payments.CompareAndSetStatus(ctx, intent.ID, entity.PaymentSucceeded, entity.PaymentRefunded, func(p *entity.PaymentIntent) {
		p.RefundID = refundID
	})
	if err != nil {
		logger.Error().Err(err).Str("intent_id", intent.ID).Str("refund_id", refundID).Msg("Refund done but intent not updated")
	}
	metrics.RecordPaymentResult(string(entity.PaymentRefunded))
	logger.Info().Str("intent_id", intent.ID).Str("refund_id", refundID).Int64("order_id", intent.OrderID).Msg("Payment refunded")
	return true, ""
}

// refundStrandedCapture refunds a capture for an order that was cancelled
// before the payment reached it. The order keeps its CANCELLED status since
// it never accepted the payment. A failed refund stays on the intent as
// REFUND_FAILED and is raised as an alert and a refund-failed event.
func (s *PaymentService) refundStrandedCapture(ctx context.Context, intent *entity.PaymentIntent) {
	if !s.claimRefund(ctx, intent.ID) {
		return
	}

	ok, reason := s.refundIntent(ctx, intent)
	if ok {
		publishEvent(ctx, s.publisher, events.PaymentEvent(events.RefundSuccess, intent, ""))
		return
	}

	metrics.RecordRefundFailure()
	logger.Error().
		Bool("alert", true).
		Str("intent_id", intent.ID).
		Int64("order_id", intent.OrderID).
		Str("reason", reason).
		Msg("Refund of capture for cancelled order failed, needs manual intervention")
	publishEvent(ctx, s.publisher, events.PaymentEvent(events.RefundFailed, intent, reason))
}

// refundLateCapture returns money captured for an intent that had already
// been marked FAILED. The intent stays FAILED; the capture and refund ids are
// recorded on it.
func (s *PaymentService) refundLateCapture(ctx context.Context, res GatewayResult) {
	intent, err := s.payments.GetByID(ctx, res.IntentID)
	if err != nil {
		logger.Error().Err(err).Bool("alert", true).Str("intent_id", res.IntentID).Msg("Late capture for unknown intent")
		return
	}
	logger.Warn().Str("intent_id", intent.ID).Str("transaction_id", res.TransactionID).Msg("Capture arrived after intent failed, refunding")

	if !s.claimRefund(ctx, intent.ID) {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	refundID, err := s.gateway.Refund(rctx, gateway.RefundRequest{
		IntentID:      intent.ID,
		OrderID:       intent.OrderID,
		TransactionID: res.TransactionID,
		Amount:        intent.Amount,
	})

	_, casErr := s.payments.CompareAndSetStatus(ctx, intent.ID, entity.PaymentFailed, entity.PaymentFailed, func(p *entity.PaymentIntent) {
		p.TransactionID = res.TransactionID
		p.RefundID = refundID
		if err != nil {
			p.FailureReason = strings.TrimSpace(p.FailureReason + "; late capture refund failed: " + err.Error())
		}
	})
	if casErr != nil {
		logger.Error().Err(casErr).Str("intent_id", intent.ID).Msg("Error recording late capture")
	}

	if err != nil {
		metrics.RecordRefundFailure()
		logger.Error().Err(err).Bool("alert", true).Str("intent_id", intent.ID).Msg("Late capture refund failed")
		publishEvent(ctx, s.publisher, events.PaymentEvent(events.RefundFailed, intent, "late capture refund failed: "+err.Error()))
	}
}

func (s *PaymentService) claimRefund(ctx context.Context, intentID string) bool {
	if s.dedup == nil {
		return true
	}
	claimed, err := s.dedup.Claim(ctx, "refund:"+intentID, dedupTTL)
	if err != nil {
		logger.Error().Err(err).Str("intent_id", intentID).Msg("Error claiming refund")
		return false
	}
	if !claimed {
		logger.Warn().Str("intent_id", intentID).Msg("Refund already attempted")
	}
	return claimed
}

func (s *PaymentService) ListForOrder(ctx context.Context, orderID int64, actor Actor) ([]*entity.PaymentIntent, error) {
	if _, err := s.orders.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return s.payments.ListForOrder(ctx, orderID)
}

// Close waits for background charges and refunds.
func (s *PaymentService) Close() {
	s.wg.Wait()
}
