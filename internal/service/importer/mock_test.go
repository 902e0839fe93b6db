package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/objectstore"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

type simTx struct{}

func (simTx) InTx(ctx context.Context, fn func(context.Context) error) error {
	return txn.Simulate(ctx, fn)
}

// memStorage mirrors objectstore.Store semantics over a map.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	stageErr  error
	commitErr error
	rollbacks int
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (m *memStorage) StageUpload(ctx context.Context, data []byte, name, contentType string) (*objectstore.StagedObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stageErr != nil {
		return nil, &objectstore.StorageError{Op: "stage", Err: m.stageErr}
	}
	name = objectstore.SanitizeFileName(name)
	id := uuid.NewString()
	staged := &objectstore.StagedObject{
		StagingKey:  objectstore.StagingPrefix + id + "/" + name,
		FinalKey:    objectstore.FinalPrefix + id + "/" + name,
		FileName:    name,
		ContentType: contentType,
	}
	m.objects[staged.StagingKey] = append([]byte(nil), data...)
	return staged, nil
}

func (m *memStorage) Commit(ctx context.Context, staged *objectstore.StagedObject) error {
	m.mu.Lock()
	if m.commitErr != nil {
		m.mu.Unlock()
		m.Rollback(ctx, staged)
		return &objectstore.StorageError{Op: "commit copy", Key: staged.FinalKey, Err: m.commitErr}
	}
	m.objects[staged.FinalKey] = m.objects[staged.StagingKey]
	delete(m.objects, staged.StagingKey)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Rollback(ctx context.Context, staged *objectstore.StagedObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	delete(m.objects, staged.StagingKey)
	delete(m.objects, staged.FinalKey)
}

func (m *memStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// memJobs applies writes made inside a transaction only when it commits.
type memJobs struct {
	mu        sync.Mutex
	seq       int64
	jobs      map[int64]domain.ImportJob
	createErr error
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[int64]domain.ImportJob{}} }

func (r *memJobs) CreateJob(ctx context.Context, job *domain.ImportJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	// Mirrors the VARCHAR widths of import_job.
	if utf8.RuneCountInString(job.Username) > domain.UsernameMax || utf8.RuneCountInString(job.FileName) > domain.FileNameMax {
		return errors.New("pq: value too long for type character varying(255)")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	job.ID = r.seq
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobs) UpdateJob(ctx context.Context, job *domain.ImportJob) error {
	snapshot := *job
	txn.OnEnd(ctx, func(committed bool) {
		if !committed {
			return
		}
		r.mu.Lock()
		r.jobs[snapshot.ID] = snapshot
		r.mu.Unlock()
	})
	return nil
}

func (r *memJobs) GetJob(ctx context.Context, id int64) (*domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("import job %d: %w", id, domain.ErrNotFound)
	}
	return &job, nil
}

func (r *memJobs) ListJobs(ctx context.Context, typ domain.ImportJobType, username string) ([]domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ImportJob
	for _, j := range r.jobs {
		if j.Type == typ && (username == "" || j.Username == username) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

// memPersons enforces case-insensitive name uniqueness and drops rows
// created by a transaction that rolls back.
type memPersons struct {
	mu      sync.Mutex
	seq     int64
	byName  map[string]domain.Person
	failOn  string
	created int
}

func newMemPersons() *memPersons { return &memPersons{byName: map[string]domain.Person{}} }

func (p *memPersons) Create(ctx context.Context, in domain.PersonInput) (*domain.Person, error) {
	if !txn.Active(ctx) {
		return nil, txn.ErrNoTx
	}
	if p.failOn != "" && in.Name == p.failOn {
		return nil, errors.New("boom")
	}
	key := domain.NormalizeName(in.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byName[key]; ok {
		return nil, fmt.Errorf("person %q: %w", in.Name, domain.ErrNameConflict)
	}
	p.seq++
	person := domain.Person{ID: p.seq, Name: in.Name, EyeColor: in.EyeColor, Height: in.Height}
	p.byName[key] = person
	p.created++
	txn.OnEnd(ctx, func(committed bool) {
		if committed {
			return
		}
		p.mu.Lock()
		delete(p.byName, key)
		p.mu.Unlock()
	})
	return &person, nil
}

func (p *memPersons) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, v := range p.byName {
		out = append(out, v.Name)
	}
	sort.Strings(out)
	return out
}

type memLocations struct {
	mu   sync.Mutex
	seq  int64
	rows []domain.Location
}

func (l *memLocations) Create(ctx context.Context, in domain.LocationInput) (*domain.Location, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	loc := domain.Location{ID: l.seq, X: in.X, Y: in.Y, Z: in.Z, Name: in.Name}
	l.rows = append(l.rows, loc)
	return &loc, nil
}

// recordingNotifier delivers after commit and runs onEvent at delivery time.
type recordingNotifier struct {
	mu      sync.Mutex
	events  []Event
	topics  []string
	onEvent func(Event)
}

func (n *recordingNotifier) BroadcastAfterCommit(ctx context.Context, topic string, payload interface{}) {
	txn.AfterCommit(ctx, func(context.Context) {
		ev := payload.(Event)
		if n.onEvent != nil {
			n.onEvent(ev)
		}
		n.mu.Lock()
		n.events = append(n.events, ev)
		n.topics = append(n.topics, topic)
		n.mu.Unlock()
	})
}
