// Package admission enforces per-user cost budgets for capability calls.
// A call reserves its estimated cost before running and must resolve the
// reservation exactly once: commit on success, release on failure or
// cancellation.
package admission

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"conductor/pkg/faults"
	"conductor/pkg/logx"
)

// ReservationStatus tracks a reservation through its lifecycle.
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusCommitted ReservationStatus = "committed"
	StatusReleased  ReservationStatus = "released"
)

// Reservation is a hold against a user's budget. It is created by
// Controller.Reserve and must reach exactly one terminal status.
type Reservation struct {
	OperationID   string
	UserID        string
	OperationType string
	EstimatedCost float64

	mu     sync.Mutex
	status ReservationStatus
}

// Status returns the reservation's current lifecycle status.
func (r *Reservation) Status() ReservationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

type ledger struct {
	budget    float64
	committed float64
	pending   float64
	pendingN  int
}

func (l *ledger) available() float64 {
	return l.budget - l.committed - l.pending
}

// Controller is the admission gate. One instance is shared across all
// concurrent turns; all ledger mutations happen under one mutex.
type Controller struct {
	table         *RateTable
	defaultBudget float64
	maxPending    int
	logger        *logx.Logger

	mu      sync.Mutex
	ledgers map[string]*ledger
}

// Config tunes the admission controller.
type Config struct {
	// DefaultBudget is granted to a user on first sight.
	DefaultBudget float64 `yaml:"default_budget"`
	// MaxPending caps unresolved reservations per user; 0 disables the cap.
	MaxPending int `yaml:"max_pending"`
}

// DefaultConfig matches moderate interactive use.
//
//nolint:gochecknoglobals
var DefaultConfig = Config{
	DefaultBudget: 100.0,
	MaxPending:    8,
}

// NewController creates an admission controller over the given rate table.
func NewController(table *RateTable, cfg Config) *Controller {
	return &Controller{
		table:         table,
		defaultBudget: cfg.DefaultBudget,
		maxPending:    cfg.MaxPending,
		logger:        logx.NewLogger("admission"),
		ledgers:       make(map[string]*ledger),
	}
}

// Reserve places a hold for quantity units of operationType against the
// user's budget. It fails fast, before the operation is attempted, when
// the available budget cannot cover the estimated cost or when the user
// already has too many unresolved reservations.
func (c *Controller) Reserve(userID, operationType string, quantity int) (*Reservation, error) {
	cost, err := c.table.Estimate(operationType, quantity)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	led := c.ledgerLocked(userID)
	if c.maxPending > 0 && led.pendingN >= c.maxPending {
		return nil, faults.Newf(faults.KindTransient,
			"user %s has %d pending reservations, try again later", userID, led.pendingN)
	}
	if cost > led.available() {
		return nil, faults.Newf(faults.KindBudgetExhausted,
			"insufficient budget for %s: need %.2f, available %.2f", operationType, cost, led.available())
	}

	led.pending += cost
	led.pendingN++

	res := &Reservation{
		OperationID:   "op-" + uuid.NewString(),
		UserID:        userID,
		OperationType: operationType,
		EstimatedCost: cost,
		status:        StatusReserved,
	}
	c.logger.Debug("reserved %.2f for %s/%s (%s)", cost, userID, operationType, res.OperationID)

	return res, nil
}

// Commit finalizes a reservation, deducting its cost from the user's
// budget. Committing a resolved reservation is an error and leaves the
// ledger unchanged.
func (c *Controller) Commit(res *Reservation) error {
	return c.resolve(res, StatusCommitted)
}

// Release cancels a reservation, returning its hold to the user's
// available budget. Releasing a resolved reservation is an error and
// leaves the ledger unchanged.
func (c *Controller) Release(res *Reservation) error {
	return c.resolve(res, StatusReleased)
}

func (c *Controller) resolve(res *Reservation, terminal ReservationStatus) error {
	res.mu.Lock()
	defer res.mu.Unlock()

	if res.status != StatusReserved {
		return faults.Newf(faults.KindProtocolViolation,
			"reservation %s already %s", res.OperationID, res.status)
	}
	res.status = terminal

	c.mu.Lock()
	defer c.mu.Unlock()

	led := c.ledgerLocked(res.UserID)
	led.pending -= res.EstimatedCost
	led.pendingN--
	if terminal == StatusCommitted {
		led.committed += res.EstimatedCost
	}
	c.logger.Debug("%s %.2f for %s (%s)", terminal, res.EstimatedCost, res.UserID, res.OperationID)

	return nil
}

// Usage is a snapshot of one user's ledger.
type Usage struct {
	UserID    string  `json:"user_id"`
	Budget    float64 `json:"budget"`
	Committed float64 `json:"committed"`
	Pending   float64 `json:"pending"`
	PendingN  int     `json:"pending_reservations"`
	Available float64 `json:"available"`
}

// UsageFor returns the user's current ledger snapshot.
func (c *Controller) UsageFor(userID string) Usage {
	c.mu.Lock()
	defer c.mu.Unlock()

	led := c.ledgerLocked(userID)

	return Usage{
		UserID:    userID,
		Budget:    led.budget,
		Committed: led.committed,
		Pending:   led.pending,
		PendingN:  led.pendingN,
		Available: led.available(),
	}
}

// SetBudget overrides the total budget for a user.
func (c *Controller) SetBudget(userID string, budget float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ledgerLocked(userID).budget = budget
}

func (c *Controller) ledgerLocked(userID string) *ledger {
	led, ok := c.ledgers[userID]
	if !ok {
		led = &ledger{budget: c.defaultBudget}
		c.ledgers[userID] = led
	}

	return led
}

// WithReservation runs fn under a reservation and guarantees terminal
// resolution on every exit path: commit when fn succeeds, release when fn
// fails, panics, or the context is cancelled.
func (c *Controller) WithReservation(ctx context.Context, userID, operationType string, quantity int, fn func(ctx context.Context) error) error {
	res, err := c.Reserve(userID, operationType, quantity)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if relErr := c.Release(res); relErr != nil {
				c.logger.Error("release of %s failed: %v", res.OperationID, relErr)
			}
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.Commit(res); err != nil {
		return err
	}
	committed = true

	return nil
}
