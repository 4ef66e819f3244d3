package registry

import (
	"strconv"
	"sync"
	"time"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/lifecycle"
)

// Registry holds every ManagedProcess entry known to the daemon, indexed by
// id, by name, and by OS pid. It performs no I/O of its own: spawning,
// signaling, and waiting all happen outside its lock, in the Spawner and
// Dispatcher. Grounded on the teacher's manager.Manager entries map,
// generalized from name-only keying to the three-way index spec.md
// requires (internal/manager/manager.go).
type Registry struct {
	mu sync.RWMutex

	byID   map[int64]*ManagedProcess
	byName map[string]int64
	byPID  map[int]int64

	nextID int64
}

// New returns an empty Registry with its id counter starting at 1.
func New() *Registry {
	return &Registry{
		byID:   make(map[int64]*ManagedProcess),
		byName: make(map[string]int64),
		byPID:  make(map[int]int64),
		nextID: 1,
	}
}

// RestoreNextID sets the id counter used by subsequent Create calls,
// invoked once at startup after Persistence has loaded the last used id
// (spec.md section 4.9: "the last id counter is restored so new ids remain
// monotonic").
func (r *Registry) RestoreNextID(next int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next > r.nextID {
		r.nextID = next
	}
}

// Create allocates a new id and inserts a ManagedProcess for the given name
// and config, in the Starting state with no pid yet assigned. It fails with
// apperrors.KindNameConflict if the name is already registered by a
// non-Deleted entry.
func (r *Registry) Create(name string, cfg ProcessConfig) (*ManagedProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		if existing, ok := r.byID[id]; ok && existing.State != lifecycle.Deleted {
			return nil, apperrors.NameConflict(name)
		}
	}

	id := r.nextID
	r.nextID++

	p := &ManagedProcess{
		ID:     id,
		Name:   name,
		Config: cfg,
		State:  lifecycle.Starting,
	}
	r.byID[id] = p
	r.byName[name] = id
	return p, nil
}

// InsertRestored adds a ManagedProcess reconstructed from a persisted
// snapshot directly, bypassing name-conflict checks (the snapshot is
// authoritative for the state it captured). Used only by internal/persistence
// at startup.
func (r *Registry) InsertRestored(p *ManagedProcess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	r.byName[p.Name] = p.ID
	if p.State.HasPID() && p.PID > 0 {
		r.byPID[p.PID] = p.ID
	}
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
}

// NextID reports the id that would be assigned by the next Create call,
// for callers (internal/persistence, internal/shutdown) that need it for a
// snapshot's NextID field without allocating one themselves.
func (r *Registry) NextID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// LookupByID returns the entry with the given id, or nil if none exists.
func (r *Registry) LookupByID(id int64) *ManagedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// LookupByName returns the entry with the given name, or nil if none exists.
func (r *Registry) LookupByName(name string) *ManagedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// LookupByPID returns the entry currently holding pid, or nil if none does.
func (r *Registry) LookupByPID(pid int) *ManagedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPID[pid]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// List returns a snapshot of every non-Deleted entry, safe to hand to a
// caller outside the registry lock.
func (r *Registry) List() []ManagedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ManagedProcess, 0, len(r.byID))
	for _, p := range r.byID {
		if p.State == lifecycle.Deleted {
			continue
		}
		out = append(out, p.Snapshot())
	}
	return out
}

// ListAll returns a snapshot of every entry including Deleted ones.
func (r *Registry) ListAll() []ManagedProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ManagedProcess, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p.Snapshot())
	}
	return out
}

// WithMut applies f to the entry with the given id under the registry
// write lock, then reconciles the pid index against the entry's post-call
// state and pid (invariant 2: the pid index holds a live entry's pid
// exactly once). f must not block on I/O; blocking work belongs outside
// WithMut, in the caller, using the pid/state it read beforehand.
func (r *Registry) WithMut(id int64, f func(p *ManagedProcess)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return apperrors.NotFound(itoaID(id))
	}
	prevPID := p.PID
	prevHadPID := p.State.HasPID()
	f(p)
	r.reconcilePID(p, prevPID, prevHadPID)
	return nil
}

func (r *Registry) reconcilePID(p *ManagedProcess, prevPID int, prevHadPID bool) {
	nowHasPID := p.State.HasPID() && p.PID > 0
	if prevHadPID && prevPID > 0 && (!nowHasPID || prevPID != p.PID) {
		delete(r.byPID, prevPID)
	}
	if nowHasPID {
		r.byPID[p.PID] = p.ID
	}
}

// SetPID assigns pid to the entry, maintaining the pid index.
func (r *Registry) SetPID(id int64, pid int) error {
	return r.WithMut(id, func(p *ManagedProcess) {
		p.PID = pid
	})
}

// Remove deletes the entry entirely from all indexes. Called once the OS
// process (if any) has been reaped and the entry has reached Deleted.
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return apperrors.NotFound(itoaID(id))
	}
	if p.PID > 0 {
		delete(r.byPID, p.PID)
	}
	delete(r.byName, p.Name)
	delete(r.byID, id)
	return nil
}

// PushRestart records now onto the entry's recent_restarts window, pruning
// entries older than lifecycle.RestartWindow, and increments RestartCount.
// Returns the pruned window length for the caller to compare against
// max_restarts (spec.md section 4.4 steps 1-2).
func (r *Registry) PushRestart(id int64, now time.Time) (windowCount int, err error) {
	err = r.WithMut(id, func(p *ManagedProcess) {
		p.RecentRestarts = lifecycle.PruneRestartWindow(append(p.RecentRestarts, now), now)
		p.RestartCount++
		p.LastRestartAt = now
		windowCount = len(p.RecentRestarts)
	})
	return windowCount, err
}

func itoaID(id int64) string {
	return strconv.FormatInt(id, 10)
}
