package service

import (
	"context"
	"sync"
	"time"

	"github.com/akylbek/payment-system/payment-verifier/internal/ledger"
	"github.com/akylbek/payment-system/payment-verifier/internal/models"
	"github.com/akylbek/payment-system/payment-verifier/internal/notify"
	"github.com/akylbek/payment-system/payment-verifier/internal/repository"
)

// memoryPayments is an in-memory PaymentRepository whose MarkPaid/MarkFailed
// honor the same pending-only compare-and-set as the SQL repository.
type memoryPayments struct {
	mu         sync.Mutex
	payments   map[string]models.Payment
	paidWrites int
	getHook    func()
}

func newMemoryPayments(payments ...models.Payment) *memoryPayments {
	m := &memoryPayments{payments: make(map[string]models.Payment)}
	for _, p := range payments {
		m.payments[p.ID] = p
	}
	return m
}

func (m *memoryPayments) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = *p
	return nil
}

// GetByID runs getHook after taking its snapshot, so a hook that blocks holds
// the caller with the state it already observed.
func (m *memoryPayments) GetByID(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	p, ok := m.payments[id]
	m.mu.Unlock()

	if m.getHook != nil {
		m.getHook()
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memoryPayments) MarkPaid(_ context.Context, id, digest, wallet string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.StatusPending {
		return false, nil
	}
	p.Status = models.StatusPaid
	p.TxnDigest = digest
	p.CustomerWallet = wallet
	p.PaidAt = &paidAt
	m.payments[id] = p
	m.paidWrites++
	return true, nil
}

func (m *memoryPayments) MarkFailed(_ context.Context, id, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.StatusPending {
		return false, nil
	}
	p.Status = models.StatusFailed
	p.TxnDigest = digest
	m.payments[id] = p
	return true, nil
}

func (m *memoryPayments) get(id string) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

type MockMerchants struct {
	Merchants map[string]*models.Merchant
}

func (m *MockMerchants) GetByID(_ context.Context, id string) (*models.Merchant, error) {
	if merchant, ok := m.Merchants[id]; ok {
		cp := *merchant
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

type MockProducts struct {
	Products map[string]*models.Product
	Err      error
}

func (m *MockProducts) GetByID(_ context.Context, id string) (*models.Product, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if product, ok := m.Products[id]; ok {
		cp := *product
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

type MockLedger struct {
	mu                 sync.Mutex
	Calls              int
	GetTransactionFunc func(ctx context.Context, digest string) (*ledger.Transaction, error)
}

func (m *MockLedger) GetTransaction(ctx context.Context, digest string) (*ledger.Transaction, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, digest)
	}
	return nil, ledger.ErrNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.StateChangeEvent
	err    error
}

func (r *recordingPublisher) PublishStateChange(_ context.Context, ev models.StateChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) published() []models.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StateChangeEvent(nil), r.events...)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []notify.Job
	err  error
}

func (r *recordingQueue) Enqueue(_ context.Context, job notify.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingQueue) enqueued() []notify.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Job(nil), r.jobs...)
}
