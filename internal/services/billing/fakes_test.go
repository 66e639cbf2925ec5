package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drople/metering/internal/models"
)

// memAccounts is an in-memory AccountStore with the same atomicity contract
// as the real one: a conditional decrement either fully applies under the
// lock or affects zero rows.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account

	// conflictOnce makes the next conditional decrement on the account
	// affect zero rows, simulating a lost balance race after a passing
	// pre-check.
	conflictOnce map[uuid.UUID]bool
	// failIncrement makes Increment fail for the account, simulating a
	// store fault during a compensating credit.
	failIncrement map[uuid.UUID]bool

	decrements map[uuid.UUID]int
	increments map[uuid.UUID]int
}

func newMemAccounts(accounts ...*models.Account) *memAccounts {
	m := &memAccounts{
		accounts:      make(map[uuid.UUID]*models.Account),
		conflictOnce:  make(map[uuid.UUID]bool),
		failIncrement: make(map[uuid.UUID]bool),
		decrements:    make(map[uuid.UUID]int),
		increments:    make(map[uuid.UUID]int),
	}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) ConditionalDecrement(ctx context.Context, id uuid.UUID, amount, minBalance int64) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, 0, nil
	}
	m.decrements[id]++
	if m.conflictOnce[id] {
		m.conflictOnce[id] = false
		return 0, 0, nil
	}
	if a.Balance < minBalance {
		return 0, 0, nil
	}
	a.Balance -= amount
	return 1, a.Balance, nil
}

func (m *memAccounts) Increment(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncrement[id] {
		return 0, errors.New("store unavailable")
	}
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	m.increments[id]++
	a.Balance += amount
	return a.Balance, nil
}

func (m *memAccounts) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

type memEntitlements struct {
	active bool
	err    error
}

func (m *memEntitlements) HasActiveGrant(ctx context.Context, accountID, sponsorID uuid.UUID, now time.Time) (bool, error) {
	return m.active, m.err
}

type memUsage struct {
	mu      sync.Mutex
	entries []UsageEntry
	err     error
}

func (m *memUsage) Record(ctx context.Context, entry UsageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memUsage) all() []UsageEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UsageEntry(nil), m.entries...)
}

type note struct {
	accountID uuid.UUID
	title     string
	body      string
}

type memNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (m *memNotifier) Notify(ctx context.Context, accountID uuid.UUID, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, note{accountID: accountID, title: title, body: body})
	return nil
}

func (m *memNotifier) all() []note {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]note(nil), m.notes...)
}

type alertCall struct {
	accountID uuid.UUID
	balance   int64
}

type memAlerts struct {
	mu    sync.Mutex
	calls []alertCall
	err   error
}

func (m *memAlerts) CheckBalance(ctx context.Context, accountID uuid.UUID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, alertCall{accountID: accountID, balance: balance})
	return nil
}

func (m *memAlerts) all() []alertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alertCall(nil), m.calls...)
}
