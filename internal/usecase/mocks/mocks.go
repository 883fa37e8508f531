package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalhost/ledger/internal/domain"
	"github.com/fiscalhost/ledger/internal/usecase"
)

// MockEntryRepository is a mock implementation of EntryRepository.
type MockEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.LedgerEntry
	order   []string

	CreateFunc             func(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error
	GetByIDFunc            func(ctx context.Context, id string) (*domain.LedgerEntry, error)
	GetByGroupFunc         func(ctx context.Context, groupID string) ([]*domain.LedgerEntry, error)
	GetMirrorFunc          func(ctx context.Context, groupID, entryID string) (*domain.LedgerEntry, error)
	ListByAccountFunc      func(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error)
	ListGroupIDsFunc       func(ctx context.Context, limit, offset int) ([]string, error)
	UpdateFunc             func(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error
	SoftDeleteGroupFunc    func(ctx context.Context, tx usecase.Transaction, groupID string, at time.Time) (int, error)
	HasSettledActivityFunc func(ctx context.Context, accountID, currency string) (bool, error)
}

func NewMockEntryRepository() *MockEntryRepository {
	return &MockEntryRepository{
		entries: make(map[string]*domain.LedgerEntry),
	}
}

func (m *MockEntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries[entry.ID] = &clone
	m.order = append(m.order, entry.ID)
	return nil
}

func (m *MockEntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[id]; ok && e.DeletedAt == nil {
		clone := *e
		return &clone, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (m *MockEntryRepository) GetByGroup(ctx context.Context, groupID string) ([]*domain.LedgerEntry, error) {
	if m.GetByGroupFunc != nil {
		return m.GetByGroupFunc(ctx, groupID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*domain.LedgerEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.GroupID == groupID && e.DeletedAt == nil {
			clone := *e
			entries = append(entries, &clone)
		}
	}
	return entries, nil
}

func (m *MockEntryRepository) GetMirror(ctx context.Context, groupID, entryID string) (*domain.LedgerEntry, error) {
	if m.GetMirrorFunc != nil {
		return m.GetMirrorFunc(ctx, groupID, entryID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	if !ok || e.DeletedAt != nil {
		return nil, domain.ErrEntryNotFound
	}
	for _, id := range m.order {
		c := m.entries[id]
		if c.ID == entryID || c.GroupID != groupID || c.DeletedAt != nil {
			continue
		}
		if c.Kind == e.Kind &&
			c.SourceAccountID == e.DestinationAccountID &&
			c.DestinationAccountID == e.SourceAccountID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, domain.ErrMirrorNotFound
}

func (m *MockEntryRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*domain.LedgerEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.DeletedAt != nil {
			continue
		}
		if e.SourceAccountID == accountID || e.DestinationAccountID == accountID {
			clone := *e
			entries = append(entries, &clone)
		}
	}
	return paginate(entries, limit, offset), nil
}

func (m *MockEntryRepository) ListGroupIDs(ctx context.Context, limit, offset int) ([]string, error) {
	if m.ListGroupIDsFunc != nil {
		return m.ListGroupIDsFunc(ctx, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, id := range m.order {
		e := m.entries[id]
		if e.DeletedAt != nil || seen[e.GroupID] {
			continue
		}
		seen[e.GroupID] = true
		ids = append(ids, e.GroupID)
	}
	return paginate(ids, limit, offset), nil
}

func (m *MockEntryRepository) Update(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; !ok {
		return domain.ErrEntryNotFound
	}
	clone := *entry
	m.entries[entry.ID] = &clone
	return nil
}

func (m *MockEntryRepository) SoftDeleteGroup(ctx context.Context, tx usecase.Transaction, groupID string, at time.Time) (int, error) {
	if m.SoftDeleteGroupFunc != nil {
		return m.SoftDeleteGroupFunc(ctx, tx, groupID, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.entries {
		if e.GroupID == groupID && e.DeletedAt == nil {
			t := at
			e.DeletedAt = &t
			count++
		}
	}
	return count, nil
}

func (m *MockEntryRepository) HasSettledActivity(ctx context.Context, accountID, currency string) (bool, error) {
	if m.HasSettledActivityFunc != nil {
		return m.HasSettledActivityFunc(ctx, accountID, currency)
	}
	return false, nil
}

// All returns every stored entry in insertion order, for test assertions.
func (m *MockEntryRepository) All() []*domain.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*domain.LedgerEntry, 0, len(m.order))
	for _, id := range m.order {
		clone := *m.entries[id]
		entries = append(entries, &clone)
	}
	return entries
}

// MockSettlementRepository is a mock implementation of SettlementRepository.
type MockSettlementRepository struct {
	mu          sync.RWMutex
	settlements map[string]*domain.Settlement

	CreateFunc       func(ctx context.Context, tx usecase.Transaction, settlement *domain.Settlement) error
	GetByEntryFunc   func(ctx context.Context, entryID string) (*domain.Settlement, error)
	UpdateStatusFunc func(ctx context.Context, tx usecase.Transaction, entryID string, status domain.SettlementStatus, settledAt *time.Time) error
	ListByStatusFunc func(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error)
}

func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{
		settlements: make(map[string]*domain.Settlement),
	}
}

func (m *MockSettlementRepository) Create(ctx context.Context, tx usecase.Transaction, settlement *domain.Settlement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, settlement)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *settlement
	m.settlements[settlement.EntryID] = &clone
	return nil
}

func (m *MockSettlementRepository) GetByEntry(ctx context.Context, entryID string) (*domain.Settlement, error) {
	if m.GetByEntryFunc != nil {
		return m.GetByEntryFunc(ctx, entryID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.settlements[entryID]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, domain.ErrSettlementNotFound
}

func (m *MockSettlementRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, entryID string, status domain.SettlementStatus, settledAt *time.Time) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, entryID, status, settledAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[entryID]
	if !ok {
		return domain.ErrSettlementNotFound
	}
	s.Status = status
	s.SettledAt = settledAt
	return nil
}

func (m *MockSettlementRepository) ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, status, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var settlements []*domain.Settlement
	for _, s := range m.settlements {
		if s.Status == status {
			clone := *s
			settlements = append(settlements, &clone)
		}
	}
	sort.Slice(settlements, func(i, j int) bool {
		return settlements[i].EntryID < settlements[j].EntryID
	})
	return paginate(settlements, limit, offset), nil
}

// MockAccountDirectory is a mock implementation of AccountDirectory.
type MockAccountDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	vendors  map[string]*domain.Account

	ResolveAccountFunc func(ctx context.Context, id string) (*domain.Account, error)
	ResolveHostFunc    func(ctx context.Context, accountID string) (*domain.Account, error)
	ResolveVendorFunc  func(ctx context.Context, provider string) (*domain.Account, error)
}

func NewMockAccountDirectory() *MockAccountDirectory {
	return &MockAccountDirectory{
		accounts: make(map[string]*domain.Account),
		vendors:  make(map[string]*domain.Account),
	}
}

// AddAccount registers an account for resolution.
func (m *MockAccountDirectory) AddAccount(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

// AddVendor registers the fee-recipient account for a processor provider.
func (m *MockAccountDirectory) AddVendor(provider string, account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	m.vendors[provider] = account
}

func (m *MockAccountDirectory) ResolveAccount(ctx context.Context, id string) (*domain.Account, error) {
	if m.ResolveAccountFunc != nil {
		return m.ResolveAccountFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountDirectory) ResolveHost(ctx context.Context, accountID string) (*domain.Account, error) {
	if m.ResolveHostFunc != nil {
		return m.ResolveHostFunc(ctx, accountID)
	}
	account, err := m.ResolveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.HostID != nil && *account.HostID == account.ID {
		return account, nil
	}
	if !account.IsHosted() {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if host, ok := m.accounts[*account.HostID]; ok {
		return host, nil
	}
	return nil, domain.ErrHostNotFound
}

func (m *MockAccountDirectory) ResolveVendor(ctx context.Context, provider string) (*domain.Account, error) {
	if m.ResolveVendorFunc != nil {
		return m.ResolveVendorFunc(ctx, provider)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.vendors[provider]; ok {
		return a, nil
	}
	return nil, domain.ErrVendorNotFound
}

// MockRateService is a mock implementation of RateService. Rates are keyed
// by "FROM:TO".
type MockRateService struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal

	LookupRateFunc func(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error)
}

func NewMockRateService() *MockRateService {
	return &MockRateService{
		rates: make(map[string]decimal.Decimal),
	}
}

// SetRate registers a conversion rate and its inverse.
func (m *MockRateService) SetRate(from, to string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[from+":"+to] = rate
	if !rate.IsZero() {
		m.rates[to+":"+from] = decimal.NewFromInt(1).Div(rate)
	}
}

func (m *MockRateService) LookupRate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	if m.LookupRateFunc != nil {
		return m.LookupRateFunc(ctx, from, to, at)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rate, ok := m.rates[from+":"+to]; ok {
		return rate, nil
	}
	return decimal.Zero, fmt.Errorf("no rate for %s/%s", from, to)
}

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mu     sync.RWMutex
	events []*domain.OutboxEvent

	CreateFunc          func(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error
	GetUnpublishedFunc  func(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublishedFunc   func(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublishedFunc func(ctx context.Context, before time.Time) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *event
	m.events = append(m.events, &clone)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if m.GetUnpublishedFunc != nil {
		return m.GetUnpublishedFunc(ctx, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*domain.OutboxEvent
	for _, e := range m.events {
		if !e.Published {
			clone := *e
			events = append(events, &clone)
		}
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id, publishedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Published = true
			t := publishedAt
			e.PublishedAt = &t
			return nil
		}
	}
	return nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	if m.DeletePublishedFunc != nil {
		return m.DeletePublishedFunc(ctx, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.OutboxEvent
	for _, e := range m.events {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return nil
}

// Events returns every stored event, for test assertions.
func (m *MockOutboxRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*domain.OutboxEvent, 0, len(m.events))
	for _, e := range m.events {
		clone := *e
		events = append(events, &clone)
	}
	return events
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	Committed  bool
	RolledBack bool

	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	m.Committed = true
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	m.RolledBack = true
	return nil
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	mu           sync.Mutex
	Transactions []*MockTransaction

	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &MockTransaction{}
	m.Transactions = append(m.Transactions, tx)
	return tx, nil
}

// MockIDGenerator generates sequential IDs.
type MockIDGenerator struct {
	mu   sync.Mutex
	next int

	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return fmt.Sprintf("entry-%03d", m.next)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
