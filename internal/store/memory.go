package store

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

// row holds one aggregate. mu serializes writers; readers load cur
// without locking and always see a whole published version.
type row[T any] struct {
	mu  sync.Mutex
	cur atomic.Pointer[T]
}

// table maps keys to rows. Its own lock guards only the map, never a mutation.
type table[K comparable, T any] struct {
	mu    sync.RWMutex
	rows  map[K]*row[T]
	order []K
	clone func(*T) *T
}

func newTable[K comparable, T any](clone func(*T) *T) *table[K, T] {
	return &table[K, T]{rows: make(map[K]*row[T]), clone: clone}
}

func (t *table[K, T]) insert(key K, v *T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; ok {
		return domain.ErrAlreadyExists
	}
	r := &row[T]{}
	r.cur.Store(t.clone(v))
	t.rows[key] = r
	t.order = append(t.order, key)
	return nil
}

func (t *table[K, T]) lookup(key K) (*row[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[key]
	return r, ok
}

func (t *table[K, T]) get(key K) (*T, error) {
	r, ok := t.lookup(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.clone(r.cur.Load()), nil
}

func (t *table[K, T]) update(key K, fn func(*T) (bool, error)) (*T, error) {
	r, ok := t.lookup(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := t.clone(r.cur.Load())
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return t.clone(r.cur.Load()), nil
	}
	r.cur.Store(next)
	return t.clone(next), nil
}

func (t *table[K, T]) list(match func(*T) bool) []T {
	t.mu.RLock()
	rows := make([]*row[T], 0, len(t.order))
	for _, k := range t.order {
		rows = append(rows, t.rows[k])
	}
	t.mu.RUnlock()

	out := []T{}
	for _, r := range rows {
		if v := r.cur.Load(); match(v) {
			out = append(out, *t.clone(v))
		}
	}
	return out
}

// MemoryStore keeps everything in process. Writers to different keys never
// contend.
type MemoryStore struct {
	records      *table[identifier.ID, domain.AccidentRecord]
	claims       *table[string, domain.Claim]
	subrogations *table[string, domain.SubrogationClaim]

	keysMu sync.Mutex
	keys   map[string]*IdempotencyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:      newTable[identifier.ID]((*domain.AccidentRecord).Clone),
		claims:       newTable[string]((*domain.Claim).Clone),
		subrogations: newTable[string]((*domain.SubrogationClaim).Clone),
		keys:         make(map[string]*IdempotencyRecord),
	}
}

func (m *MemoryStore) CreateRecord(ctx context.Context, rec *domain.AccidentRecord) error {
	return m.records.insert(rec.ID, rec)
}

func (m *MemoryStore) GetRecord(ctx context.Context, id identifier.ID) (*domain.AccidentRecord, error) {
	return m.records.get(id)
}

func (m *MemoryStore) UpdateRecord(ctx context.Context, id identifier.ID, fn RecordMutation) (*domain.AccidentRecord, error) {
	return m.records.update(id, fn)
}

func (m *MemoryStore) CreateClaim(ctx context.Context, c *domain.Claim) error {
	return m.claims.insert(c.ID, c)
}

func (m *MemoryStore) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	return m.claims.get(id)
}

func (m *MemoryStore) UpdateClaim(ctx context.Context, id string, fn ClaimMutation) (*domain.Claim, error) {
	return m.claims.update(id, fn)
}

func (m *MemoryStore) ListClaims(ctx context.Context, accidentID identifier.ID) ([]domain.Claim, error) {
	return m.claims.list(func(c *domain.Claim) bool { return c.AccidentID == accidentID }), nil
}

func (m *MemoryStore) CreateSubrogation(ctx context.Context, s *domain.SubrogationClaim) error {
	return m.subrogations.insert(s.ID, s)
}

func (m *MemoryStore) GetSubrogation(ctx context.Context, id string) (*domain.SubrogationClaim, error) {
	return m.subrogations.get(id)
}

func (m *MemoryStore) UpdateSubrogation(ctx context.Context, id string, fn SubrogationMutation) (*domain.SubrogationClaim, error) {
	return m.subrogations.update(id, fn)
}

func (m *MemoryStore) ListSubrogations(ctx context.Context, accidentID identifier.ID) ([]domain.SubrogationClaim, error) {
	return m.subrogations.list(func(s *domain.SubrogationClaim) bool { return s.AccidentID == accidentID }), nil
}

func (m *MemoryStore) ListApprovedSubrogations(ctx context.Context, a, b string) ([]domain.SubrogationClaim, error) {
	pair := []string{a, b}
	return m.subrogations.list(func(s *domain.SubrogationClaim) bool {
		return s.Status == domain.SubrogationApproved &&
			slices.Contains(pair, s.ClaimantInsurer) &&
			slices.Contains(pair, s.RespondentInsurer)
	}), nil
}

func (m *MemoryStore) ReserveKey(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	if rec, ok := m.keys[key]; ok {
		if rec.RequestHash != requestHash {
			return nil, ErrIdempotencyMismatch
		}
		if rec.Status != keyCompleted {
			return nil, ErrIdempotencyConflict
		}
		out := *rec
		out.ResponseBody = slices.Clone(rec.ResponseBody)
		return &out, nil
	}
	m.keys[key] = &IdempotencyRecord{Key: key, RequestHash: requestHash, Status: keyInProgress}
	return nil, nil
}

func (m *MemoryStore) CompleteKey(ctx context.Context, key string, status int, body []byte) error {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	rec, ok := m.keys[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = keyCompleted
	rec.ResponseStatus = status
	rec.ResponseBody = slices.Clone(body)
	return nil
}

func (m *MemoryStore) ReleaseKey(ctx context.Context, key string) error {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	if rec, ok := m.keys[key]; ok && rec.Status == keyInProgress {
		delete(m.keys, key)
	}
	return nil
}
