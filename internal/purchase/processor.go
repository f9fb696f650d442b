// Package purchase turns third-party store callbacks into verified,
// server-confirmed entitlements. The pipeline is idempotent under duplicated
// and delayed deliveries: a transaction id is settled at most once, and a
// purchase is never acknowledged to the upstream store before the backend has
// verified it.
package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/clock"
	"github.com/skyrush-games/client/internal/metrics"
)

// Outcome classifies the result of one delivery.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeCancelled   Outcome = "cancelled"
)

// Delivery is one purchase callback from the upstream store SDK.
type Delivery struct {
	ProductID     string
	TransactionID string
	Receipt       string
	Cancelled     bool
}

// UpstreamStore is the platform purchase SDK surface the processor drives.
// Acknowledge marks a transaction settled upstream; an unacknowledged
// transaction is redelivered on a later restore.
type UpstreamStore interface {
	Initialize(ctx context.Context) error
	BeginPurchase(ctx context.Context, productID, requestID string) error
	Acknowledge(ctx context.Context, transactionID string) error
}

// ReceiptStore is the durable local receipt cache.
type ReceiptStore interface {
	HasTransaction(transactionID string) (bool, error)
	SaveReceipt(transactionID, productID, state string) error
	HasVerifiedReceipt(productID string) (bool, error)
}

// Verifier is the backend's receipt verification call.
type Verifier interface {
	VerifyPurchase(ctx context.Context, productID, receipt string) (backend.VerifyResult, error)
}

// Config tunes the processor.
type Config struct {
	InitTimeout time.Duration // bound on the upstream init handshake
	Cooldown    time.Duration // per-product initiation cooldown
}

// Processor is the idempotent purchase pipeline.
type Processor struct {
	cfg      Config
	upstream UpstreamStore
	receipts ReceiptStore
	verifier Verifier
	refresh  func(ctx context.Context) error // dependent-state refresh after verification
	entitled func(productID string) bool     // server-confirmed entitlement flags
	clk      clock.Clock
	metrics  *metrics.Metrics
	logger   *log.Logger

	mu           sync.Mutex
	seen         map[string]struct{}
	acked        map[string]struct{}
	lastInitiate map[string]time.Time
	initializing bool
	initialized  bool
}

// NewProcessor wires the pipeline. refresh and entitled may be nil.
func NewProcessor(cfg Config, upstream UpstreamStore, receipts ReceiptStore, verifier Verifier,
	refresh func(ctx context.Context) error, entitled func(string) bool,
	clk clock.Clock, m *metrics.Metrics, logger *log.Logger) *Processor {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Second
	}
	return &Processor{
		cfg:          cfg,
		upstream:     upstream,
		receipts:     receipts,
		verifier:     verifier,
		refresh:      refresh,
		entitled:     entitled,
		clk:          clk,
		metrics:      m,
		logger:       logger.With("component", "purchase"),
		seen:         make(map[string]struct{}),
		acked:        make(map[string]struct{}),
		lastInitiate: make(map[string]time.Time),
	}
}

// Initialize runs the bounded handshake with the upstream store. On timeout
// the in-progress flag is cleared and the failure surfaces; the pipeline is
// never left wedged in "initializing".
func (p *Processor) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	if p.initializing {
		p.mu.Unlock()
		return ErrInitInProgress
	}
	p.initializing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.initializing = false
		p.mu.Unlock()
	}()

	initCtx, cancel := context.WithTimeout(ctx, p.cfg.InitTimeout)
	defer cancel()

	if err := p.upstream.Initialize(initCtx); err != nil {
		p.logger.Error("purchase subsystem initialization failed", "error", err)
		return err
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	p.logger.Info("purchase subsystem initialized")
	return nil
}

// InitiatePurchase starts a purchase flow for a product. Duplicate taps inside
// the cooldown window are suppressed.
func (p *Processor) InitiatePurchase(ctx context.Context, productID, requestID string) error {
	now := p.clk.Now()

	p.mu.Lock()
	if last, ok := p.lastInitiate[productID]; ok && now.Sub(last) < p.cfg.Cooldown {
		p.mu.Unlock()
		return ErrCooldown
	}
	p.lastInitiate[productID] = now
	p.mu.Unlock()

	return p.upstream.BeginPurchase(ctx, productID, requestID)
}

// OnPurchaseDelivered processes one store callback.
//
// Duplicates (by transaction id) return OutcomeDuplicate with no side effects.
// Otherwise the receipt is verified against the backend, dependent state is
// refreshed, and only then is the transaction acknowledged upstream. A failed
// verification is not acknowledged and the id is released again, so the
// upstream store's natural redelivery can retry it.
func (p *Processor) OnPurchaseDelivered(ctx context.Context, d Delivery) (Outcome, error) {
	if d.Cancelled {
		p.count(OutcomeCancelled)
		return OutcomeCancelled, nil
	}

	if d.TransactionID != "" {
		if dup, err := p.markSeen(d.TransactionID); err != nil {
			return OutcomeUnavailable, err
		} else if dup {
			p.settleIfUnacked(ctx, d.TransactionID)
			p.logger.Info("duplicate purchase delivery ignored",
				"product", d.ProductID, "transaction", d.TransactionID)
			p.count(OutcomeDuplicate)
			return OutcomeDuplicate, nil
		}
	}

	res, err := p.verifier.VerifyPurchase(ctx, d.ProductID, d.Receipt)
	if err != nil {
		p.release(d.TransactionID)
		p.logger.Error("purchase verification unavailable",
			"product", d.ProductID, "transaction", d.TransactionID, "error", err)
		p.count(OutcomeUnavailable)
		return OutcomeUnavailable, err
	}
	if !res.Success {
		p.release(d.TransactionID)
		p.logger.Warn("purchase verification rejected",
			"product", d.ProductID, "transaction", d.TransactionID, "message", res.Message)
		p.count(OutcomeRejected)
		return OutcomeRejected, nil
	}

	if d.TransactionID != "" {
		if err := p.receipts.SaveReceipt(d.TransactionID, d.ProductID, "verified"); err != nil {
			p.logger.Error("cannot cache verified receipt", "transaction", d.TransactionID, "error", err)
		}
	}

	// Refresh inventory/user-data before acknowledging: once acknowledged the
	// store considers the purchase settled, so the entitlement must already
	// be granted.
	if p.refresh != nil {
		if err := p.refresh(ctx); err != nil {
			p.logger.Warn("dependent-state refresh failed after verification", "error", err)
		}
	}

	if d.TransactionID != "" {
		if err := p.upstream.Acknowledge(ctx, d.TransactionID); err != nil {
			p.logger.Error("acknowledge failed; store will redeliver",
				"transaction", d.TransactionID, "error", err)
			p.count(OutcomeUnavailable)
			return OutcomeUnavailable, err
		}
		p.markAcked(d.TransactionID)
	}

	p.count(OutcomeVerified)
	return OutcomeVerified, nil
}

// Owned reports product ownership: a locally-cached verified receipt or a
// server-confirmed entitlement flag, either counts.
func (p *Processor) Owned(productID string) bool {
	if owned, err := p.receipts.HasVerifiedReceipt(productID); err == nil && owned {
		return true
	}
	if p.entitled != nil && p.entitled(productID) {
		return true
	}
	return false
}

// markSeen records a transaction id in both the process-lifetime set and the
// durable cache. Returns true when the id was already known.
func (p *Processor) markSeen(transactionID string) (bool, error) {
	p.mu.Lock()
	if _, ok := p.seen[transactionID]; ok {
		p.mu.Unlock()
		return true, nil
	}
	p.seen[transactionID] = struct{}{}
	p.mu.Unlock()

	known, err := p.receipts.HasTransaction(transactionID)
	if err != nil {
		p.release(transactionID)
		return false, err
	}
	return known, nil
}

// settleIfUnacked closes the gap a transient acknowledge failure leaves
// behind: the receipt verified and the entitlement was granted, but the store
// never saw the transaction settled, so it redelivers. Re-issuing the
// acknowledgement is idempotent upstream. Transactions without a verified
// receipt (still in-flight, or restored before verification) are left alone;
// verification strictly precedes acknowledgement.
func (p *Processor) settleIfUnacked(ctx context.Context, transactionID string) {
	p.mu.Lock()
	_, done := p.acked[transactionID]
	p.mu.Unlock()
	if done {
		return
	}

	verified, err := p.receipts.HasTransaction(transactionID)
	if err != nil || !verified {
		return
	}

	if err := p.upstream.Acknowledge(ctx, transactionID); err != nil {
		p.logger.Error("acknowledge on redelivery failed; store will redeliver",
			"transaction", transactionID, "error", err)
		return
	}
	p.markAcked(transactionID)
	p.logger.Info("settled previously unacknowledged transaction", "transaction", transactionID)
}

func (p *Processor) markAcked(transactionID string) {
	p.mu.Lock()
	p.acked[transactionID] = struct{}{}
	p.mu.Unlock()
}

// release forgets a transaction id whose verification did not settle, so a
// redelivery is processed rather than swallowed as a duplicate.
func (p *Processor) release(transactionID string) {
	if transactionID == "" {
		return
	}
	p.mu.Lock()
	delete(p.seen, transactionID)
	p.mu.Unlock()
}

func (p *Processor) count(o Outcome) {
	if p.metrics != nil {
		p.metrics.Purchases.WithLabelValues(string(o)).Inc()
	}
}
