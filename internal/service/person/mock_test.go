package person

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// simTx runs work inside an in-memory transaction scope.
type simTx struct{}

func (simTx) InTx(ctx context.Context, fn func(context.Context) error) error {
	return txn.Simulate(ctx, fn)
}

// memLocker emulates pg_advisory_xact_lock: one mutex per normalized name,
// released when the transaction scope ends.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker { return &memLocker{locks: map[string]*sync.Mutex{}} }

func (l *memLocker) LockName(ctx context.Context, name string) error {
	if !txn.Active(ctx) {
		return txn.ErrNoTx
	}
	key := domain.NormalizeName(name)
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	txn.OnEnd(ctx, func(bool) { m.Unlock() })
	return nil
}

// mockRepo is an in-memory store whose writes are undone when the
// surrounding transaction scope rolls back.
type mockRepo struct {
	mu      sync.RWMutex
	seq     int64
	persons map[int64]domain.Person
	coords  map[int64]domain.Coordinates
	locs    map[int64]domain.Location

	// delay widens the check-then-write window in race tests.
	delay time.Duration
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		persons: map[int64]domain.Person{},
		coords:  map[int64]domain.Coordinates{},
		locs:    map[int64]domain.Location{},
	}
}

func (r *mockRepo) nextID() int64 {
	r.seq++
	return r.seq
}

func (r *mockRepo) undo(ctx context.Context, fn func()) {
	txn.OnEnd(ctx, func(committed bool) {
		if committed {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		fn()
	})
}

func (r *mockRepo) Get(ctx context.Context, id int64) (*domain.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *mockRepo) List(ctx context.Context, f domain.PersonFilter) ([]domain.Person, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Person
	for _, p := range r.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *mockRepo) NameExists(ctx context.Context, name string, ignoreID *int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, p := range r.persons {
		if ignoreID != nil && id == *ignoreID {
			continue
		}
		if strings.EqualFold(p.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockRepo) Create(ctx context.Context, p *domain.Person) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID()
	p.CreationDate = time.Now().UTC()
	r.persons[p.ID] = *p
	id := p.ID
	r.undo(ctx, func() { delete(r.persons, id) })
	return nil
}

func (r *mockRepo) Update(ctx context.Context, p *domain.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.persons[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	r.persons[p.ID] = *p
	r.undo(ctx, func() { r.persons[prev.ID] = prev })
	return nil
}

func (r *mockRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.persons[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.persons, id)
	r.undo(ctx, func() { r.persons[id] = prev })
	return nil
}

func (r *mockRepo) DeleteByHeight(ctx context.Context, height float64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, p := range r.persons {
		if p.Height == height {
			ids = append(ids, id)
			delete(r.persons, id)
			prev := p
			r.undo(ctx, func() { r.persons[prev.ID] = prev })
		}
	}
	return ids, nil
}

func (r *mockRepo) MaxID(ctx context.Context) (*int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max *int64
	for id := range r.persons {
		if max == nil || id > *max {
			v := id
			max = &v
		}
	}
	return max, nil
}

func (r *mockRepo) UniqueHeights(ctx context.Context) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[float64]bool{}
	var out []float64
	for _, p := range r.persons {
		if !seen[p.Height] {
			seen[p.Height] = true
			out = append(out, p.Height)
		}
	}
	sort.Float64s(out)
	return out, nil
}

func (r *mockRepo) CountByEyeColor(ctx context.Context, c domain.Color) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, p := range r.persons {
		if p.EyeColor == c {
			n++
		}
	}
	return n, nil
}

func (r *mockRepo) ShareByEyeColor(ctx context.Context, c domain.Color) (float64, error) {
	n, _ := r.CountByEyeColor(ctx, c)
	r.mu.RLock()
	total := len(r.persons)
	r.mu.RUnlock()
	if total == 0 {
		return 0, nil
	}
	return float64(n) * 100 / float64(total), nil
}

func (r *mockRepo) GetCoordinates(ctx context.Context, id int64) (*domain.Coordinates, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coords[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *mockRepo) CreateCoordinates(ctx context.Context, c *domain.Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID()
	r.coords[c.ID] = *c
	id := c.ID
	r.undo(ctx, func() { delete(r.coords, id) })
	return nil
}

func (r *mockRepo) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (r *mockRepo) CreateLocation(ctx context.Context, l *domain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = r.nextID()
	r.locs[l.ID] = *l
	id := l.ID
	r.undo(ctx, func() { delete(r.locs, id) })
	return nil
}

// recordingNotifier keeps events delivered after commit.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) BroadcastAfterCommit(ctx context.Context, topic string, payload interface{}) {
	txn.AfterCommit(ctx, func(context.Context) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.events = append(n.events, payload.(Event))
	})
}

func (n *recordingNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}
