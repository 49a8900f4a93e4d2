package txcontext

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

type ctxKeyType struct{}

var ctxKey = ctxKeyType{}

// Manager is the single-writer boundary for transaction contexts: it tracks
// which contexts are currently bound to an execution unit and enforces that
// every bind is matched by an unbind, the way the teacher's request-scoped
// transaction registration works.
type Manager struct {
	mu     sync.Mutex
	active map[sakti.UUID]*sakti.TransactionContext
}

// NewManager returns an empty binding registry.
func NewManager() *Manager {
	return &Manager{active: make(map[sakti.UUID]*sakti.TransactionContext)}
}

// CreateOrJoin returns the TransactionContext already bound to ctx (a
// propagated continuation restored into this goroutine, see
// internal/propagation), or creates and binds a fresh one for businessKey.
// joined reports which happened.
func (m *Manager) CreateOrJoin(ctx context.Context, businessKey string) (c *sakti.TransactionContext, joined bool) {
	if existing, ok := ctx.Value(ctxKey).(*sakti.TransactionContext); ok && existing != nil {
		return existing, true
	}
	tc := sakti.NewTransactionContext(businessKey)
	m.bind(tc)
	return tc, false
}

// Bind registers tc as actively owned by the calling execution unit without
// creating a new context — used when propagation.Restore produces a context
// bound to the same txId.
func (m *Manager) Bind(tc *sakti.TransactionContext) context.Context {
	m.bind(tc)
	return context.WithValue(context.Background(), ctxKey, tc)
}

// WithContext attaches tc to ctx so downstream calls within the same
// execution unit observe it via CreateOrJoin.
func WithContext(ctx context.Context, tc *sakti.TransactionContext) context.Context {
	return context.WithValue(ctx, ctxKey, tc)
}

// FromContext retrieves the TransactionContext bound to ctx, if any.
func FromContext(ctx context.Context) (*sakti.TransactionContext, bool) {
	tc, ok := ctx.Value(ctxKey).(*sakti.TransactionContext)
	return tc, ok
}

func (m *Manager) bind(tc *sakti.TransactionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[tc.TxID] = tc
}

// Unbind releases tc from the registry. Call on every exit path of the
// execution unit that bound it.
func (m *Manager) Unbind(tc *sakti.TransactionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, tc.TxID)
}

// IsBound reports whether a context for txID is still registered.
func (m *Manager) IsBound(txID sakti.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[txID]
	return ok
}

// EnforceClean is the boundary filter's defensive sweep: it forcibly clears
// and logs any context matching txID that is still bound after the
// execution unit claims to have finished with it. Call this after the
// coordinator's Execute returns, regardless of outcome.
func (m *Manager) EnforceClean(txID sakti.UUID) {
	m.mu.Lock()
	_, leaked := m.active[txID]
	delete(m.active, txID)
	m.mu.Unlock()
	if leaked {
		log.Warn("transaction context leaked past execution boundary", "txId", fmt.Sprint(txID))
	}
}
