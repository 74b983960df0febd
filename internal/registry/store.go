package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/masterlist/internal/models"
)

// shardCount is the number of lock stripes per tenant namespace.
const shardCount = 16

// MutationKind tells observers what changed in a namespace.
type MutationKind uint8

// Mutation kinds delivered to observers.
const (
	MutationUpsert MutationKind = iota + 1
	MutationRemove
	MutationClear
)

// Observer is called after a successful mutation of a tenant namespace.
// It runs outside of store locks and must not block.
type Observer func(tenantID int64, kind MutationKind)

// Store is the tenant isolated storage of server records and their liveness marks.
// Every method honors ctx; an expired ctx yields models.ErrStoreUnavailable.
type Store interface {
	// Upsert inserts or replaces a record and stamps its liveness mark.
	// A zero LastHeartbeat is set to the store clock. A write older than the stored
	// heartbeat is not applied and reported with applied=false.
	Upsert(ctx context.Context, tenantID int64, rec models.ServerRecord) (applied bool, err error)

	// Update atomically modifies an existing record. The heartbeat is advanced to the
	// store clock and never moves backward. Missing records yield models.ErrServerNotFound.
	Update(ctx context.Context, tenantID int64, serverID string, fn func(*models.ServerRecord) error) (models.ServerRecord, error)

	// Get returns a copy of a record. Absence is not an error.
	Get(ctx context.Context, tenantID int64, serverID string) (models.ServerRecord, bool, error)

	// Scan returns a point-in-time copy of every record of a tenant.
	Scan(ctx context.Context, tenantID int64) ([]models.ServerRecord, error)

	// Liveness returns a copy of the server id to last heartbeat map of a tenant.
	Liveness(ctx context.Context, tenantID int64) (map[string]time.Time, error)

	// Remove deletes a record and its liveness mark and reports whether it existed.
	Remove(ctx context.Context, tenantID int64, serverID string) (bool, error)

	// RemoveIfStale deletes a record only if its heartbeat is not after cutoff.
	RemoveIfStale(ctx context.Context, tenantID int64, serverID string, cutoff time.Time) (bool, error)

	// ClearTenant drops the whole namespace of a tenant.
	ClearTenant(ctx context.Context, tenantID int64) error

	// Usage returns the approximate number of bytes held for a tenant.
	Usage(ctx context.Context, tenantID int64) (int64, error)

	// Subscribe registers a mutation observer.
	Subscribe(o Observer)
}

type shard struct {
	records  map[string]models.ServerRecord
	liveness map[string]time.Time
	mu       sync.RWMutex
	// dead is set once ClearTenant detached the namespace; writes are refused.
	dead bool
}

type namespace struct {
	shards [shardCount]*shard
}

func newNamespace() *namespace {
	ns := &namespace{}
	for i := range ns.shards {
		ns.shards[i] = &shard{
			records:  make(map[string]models.ServerRecord),
			liveness: make(map[string]time.Time),
		}
	}
	return ns
}

func (ns *namespace) shardFor(serverID string) *shard {
	return ns.shards[xxhash.Sum64String(serverID)%shardCount]
}

// kill marks every shard dead and drops its records. Writers that fetched the
// namespace before it was detached observe dead under the shard lock.
func (ns *namespace) kill() {
	for _, sh := range ns.shards {
		sh.mu.Lock()
		sh.dead = true
		sh.records = nil
		sh.liveness = nil
		sh.mu.Unlock()
	}
}

func errDetached(tenantID int64) error {
	return fmt.Errorf("%w: game %d was cleared", models.ErrTenantUnknown, tenantID)
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	namespaces map[int64]*namespace
	now        func() time.Time
	observers  []Observer
	mu         sync.RWMutex
	obsMu      sync.RWMutex
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		namespaces: make(map[int64]*namespace),
		now:        now,
	}
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

func (s *MemoryStore) notify(tenantID int64, kind MutationKind) {
	s.obsMu.RLock()
	obs := s.observers
	s.obsMu.RUnlock()

	for _, o := range obs {
		o(tenantID, kind)
	}
}

func (s *MemoryStore) namespace(tenantID int64, create bool) *namespace {
	s.mu.RLock()
	ns := s.namespaces[tenantID]
	s.mu.RUnlock()
	if ns != nil || !create {
		return ns
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ns = s.namespaces[tenantID]; ns == nil {
		ns = newNamespace()
		s.namespaces[tenantID] = ns
	}
	return ns
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, tenantID int64, rec models.ServerRecord) (bool, error) {
	if err := storeErr(ctx); err != nil {
		return false, err
	}

	rec = rec.Clone()
	rec.TenantID = tenantID
	if rec.LastHeartbeat.IsZero() {
		rec.LastHeartbeat = s.now()
	}

	return s.upsertIn(s.namespace(tenantID, true), tenantID, rec)
}

func (s *MemoryStore) upsertIn(ns *namespace, tenantID int64, rec models.ServerRecord) (bool, error) {
	sh := ns.shardFor(rec.ServerID)
	sh.mu.Lock()
	if sh.dead {
		sh.mu.Unlock()
		return false, errDetached(tenantID)
	}
	if prev, ok := sh.records[rec.ServerID]; ok && rec.LastHeartbeat.Before(prev.LastHeartbeat) {
		sh.mu.Unlock()
		return false, nil
	}
	sh.records[rec.ServerID] = rec
	sh.liveness[rec.ServerID] = rec.LastHeartbeat
	sh.mu.Unlock()

	s.notify(tenantID, MutationUpsert)
	return true, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, tenantID int64, serverID string, fn func(*models.ServerRecord) error) (models.ServerRecord, error) {
	if err := storeErr(ctx); err != nil {
		return models.ServerRecord{}, err
	}

	ns := s.namespace(tenantID, false)
	if ns == nil {
		return models.ServerRecord{}, fmt.Errorf("%w: %s", models.ErrServerNotFound, serverID)
	}
	return s.updateIn(ns, tenantID, serverID, fn)
}

func (s *MemoryStore) updateIn(ns *namespace, tenantID int64, serverID string, fn func(*models.ServerRecord) error) (models.ServerRecord, error) {
	sh := ns.shardFor(serverID)
	sh.mu.Lock()
	if sh.dead {
		sh.mu.Unlock()
		return models.ServerRecord{}, errDetached(tenantID)
	}
	prev, ok := sh.records[serverID]
	if !ok {
		sh.mu.Unlock()
		return models.ServerRecord{}, fmt.Errorf("%w: %s", models.ErrServerNotFound, serverID)
	}

	next := prev.Clone()
	if err := fn(&next); err != nil {
		sh.mu.Unlock()
		return models.ServerRecord{}, err
	}

	// identity is immutable
	next.ServerID = prev.ServerID
	next.TenantID = prev.TenantID

	next.LastHeartbeat = s.now()
	if next.LastHeartbeat.Before(prev.LastHeartbeat) {
		next.LastHeartbeat = prev.LastHeartbeat
	}

	sh.records[serverID] = next
	sh.liveness[serverID] = next.LastHeartbeat
	out := next.Clone()
	sh.mu.Unlock()

	s.notify(tenantID, MutationUpsert)
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, tenantID int64, serverID string) (models.ServerRecord, bool, error) {
	if err := storeErr(ctx); err != nil {
		return models.ServerRecord{}, false, err
	}

	ns := s.namespace(tenantID, false)
	if ns == nil {
		return models.ServerRecord{}, false, nil
	}

	sh := ns.shardFor(serverID)
	sh.mu.RLock()
	rec, ok := sh.records[serverID]
	if ok {
		rec = rec.Clone()
	}
	sh.mu.RUnlock()

	return rec, ok, nil
}

// Scan implements Store. All shards are read locked together so the copy is a single
// point in time; writers only ever hold one shard lock.
func (s *MemoryStore) Scan(ctx context.Context, tenantID int64) ([]models.ServerRecord, error) {
	if err := storeErr(ctx); err != nil {
		return nil, err
	}

	ns := s.namespace(tenantID, false)
	if ns == nil {
		return []models.ServerRecord{}, nil
	}

	for _, sh := range ns.shards {
		sh.mu.RLock()
	}
	total := 0
	for _, sh := range ns.shards {
		total += len(sh.records)
	}
	out := make([]models.ServerRecord, 0, total)
	// kill marks shards in order, so a clear in progress always shows on shard 0
	if !ns.shards[0].dead {
		for _, sh := range ns.shards {
			for _, rec := range sh.records {
				out = append(out, rec.Clone())
			}
		}
	}
	for _, sh := range ns.shards {
		sh.mu.RUnlock()
	}

	return out, nil
}

// Liveness implements Store.
func (s *MemoryStore) Liveness(ctx context.Context, tenantID int64) (map[string]time.Time, error) {
	if err := storeErr(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]time.Time)
	ns := s.namespace(tenantID, false)
	if ns == nil {
		return out, nil
	}

	for _, sh := range ns.shards {
		sh.mu.RLock()
		for id, t := range sh.liveness {
			out[id] = t
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(ctx context.Context, tenantID int64, serverID string) (bool, error) {
	return s.remove(ctx, tenantID, serverID, func(time.Time) bool { return true })
}

// RemoveIfStale implements Store.
func (s *MemoryStore) RemoveIfStale(ctx context.Context, tenantID int64, serverID string, cutoff time.Time) (bool, error) {
	return s.remove(ctx, tenantID, serverID, func(seen time.Time) bool { return !seen.After(cutoff) })
}

func (s *MemoryStore) remove(ctx context.Context, tenantID int64, serverID string, cond func(time.Time) bool) (bool, error) {
	if err := storeErr(ctx); err != nil {
		return false, err
	}

	ns := s.namespace(tenantID, false)
	if ns == nil {
		return false, nil
	}

	sh := ns.shardFor(serverID)
	sh.mu.Lock()
	_, ok := sh.records[serverID]
	if ok && !cond(sh.liveness[serverID]) {
		ok = false
	} else if ok {
		delete(sh.records, serverID)
		delete(sh.liveness, serverID)
	}
	sh.mu.Unlock()

	if ok {
		s.notify(tenantID, MutationRemove)
	}
	return ok, nil
}

// ClearTenant implements Store.
func (s *MemoryStore) ClearTenant(ctx context.Context, tenantID int64) error {
	if err := storeErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	ns := s.namespaces[tenantID]
	delete(s.namespaces, tenantID)
	s.mu.Unlock()

	if ns != nil {
		ns.kill()
	}

	s.notify(tenantID, MutationClear)
	return nil
}

// Usage implements Store. Sizes are estimated from the JSON encoding of each record
// plus the liveness entry.
func (s *MemoryStore) Usage(ctx context.Context, tenantID int64) (int64, error) {
	recs, err := s.Scan(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, rec := range recs {
		total += recordSize(rec)
	}
	return total, nil
}

// entryOverhead approximates map bookkeeping and the liveness timestamp per record.
const entryOverhead = 64

func recordSize(rec models.ServerRecord) int64 {
	b, err := json.Marshal(rec)
	if err != nil {
		return int64(len(rec.ServerID)) + entryOverhead
	}
	return int64(len(b)+2*len(rec.ServerID)) + entryOverhead
}

func storeErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}
