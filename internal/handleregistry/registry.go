// Package handleregistry implements the Handle Registry (§4.A): the single
// source of truth mapping a handle id to the (process-name, caller-identity)
// pair that owns it. Every other component holds handle ids only — weak
// references resolved by Lookup — so the registry can be unregistered or
// garbage collected without any component needing to hold a strong pointer
// to a ClientHandle (§9, "router holds handles by id only").
//
// The registry is modeled after the teacher's internals/overlord/state.State:
// a single mutex guards all mutable fields, and mutation never happens
// across I/O. Unlike that engine, the registry holds no durable checkpoint —
// per §5, handle bookkeeping is bounded by the daemon's own lifetime.
package handleregistry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// CancelFunc cancels any active job owned by a handle. The registry invokes
// it on Unregister and on peer disconnect; it is supplied by the daemon
// wiring layer so the registry itself never has to import the job package
// (avoiding the cyclic dependency flagged in §9).
type CancelFunc func(handleID uint64)

// Registry is the concurrency-safe Handle Registry of §4.A.
type Registry struct {
	log *zap.SugaredLogger

	mu           sync.Mutex
	byHandle     map[uint64]*model.ClientHandle
	byCaller     map[string]map[string]uint64 // callerIdentity -> processName -> handleID
	nextHandleID uint64

	onUnregister CancelFunc
}

// New constructs an empty Registry. onUnregister may be nil in tests that
// don't exercise cancellation.
func New(log *zap.SugaredLogger, onUnregister CancelFunc) *Registry {
	return &Registry{
		log:          log,
		byHandle:     make(map[uint64]*model.ClientHandle),
		byCaller:     make(map[string]map[string]uint64),
		onUnregister: onUnregister,
	}
}

// Register implements §4.A's register operation. Re-registration by the same
// caller with the same process name is idempotent; a different caller
// claiming the same process name is rejected with AlreadyRegisteredError.
func (r *Registry) Register(processName, version, callerIdentity string) (uint64, error) {
	if processName == "" || version == "" {
		return 0, &rfwerr.InvalidArgsError{Field: "processName/version", Reason: "must not be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if byProcess, ok := r.byCaller[callerIdentity]; ok {
		if id, ok := byProcess[processName]; ok {
			// Same caller, same process name: idempotent re-registration.
			return id, nil
		}
	}

	for caller, byProcess := range r.byCaller {
		if caller == callerIdentity {
			continue
		}
		if _, ok := byProcess[processName]; ok {
			return 0, &rfwerr.AlreadyRegisteredError{ProcessName: processName}
		}
	}

	r.nextHandleID++
	id := r.nextHandleID

	handle := &model.ClientHandle{
		HandleID:       id,
		ProcessName:    processName,
		LibVersion:     version,
		CallerIdentity: callerIdentity,
	}
	r.byHandle[id] = handle

	if r.byCaller[callerIdentity] == nil {
		r.byCaller[callerIdentity] = make(map[string]uint64)
	}
	r.byCaller[callerIdentity][processName] = id

	r.log.Infow("registered client", "handleId", id, "processName", processName, "caller", callerIdentity)
	return id, nil
}

// Unregister implements §4.A's unregister operation: it removes the handle
// and then, outside the lock, cancels any active job for it.
func (r *Registry) Unregister(handleID uint64) bool {
	r.mu.Lock()
	handle, ok := r.byHandle[handleID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byHandle, handleID)
	if byProcess, ok := r.byCaller[handle.CallerIdentity]; ok {
		delete(byProcess, handle.ProcessName)
		if len(byProcess) == 0 {
			delete(r.byCaller, handle.CallerIdentity)
		}
	}
	r.mu.Unlock()

	if r.onUnregister != nil {
		r.onUnregister(handleID)
	}
	r.log.Infow("unregistered client", "handleId", handleID)
	return true
}

// Lookup resolves a handle id to its entry, or a zero ClientHandle and
// false if unknown.
func (r *Registry) Lookup(handleID uint64) (model.ClientHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.byHandle[handleID]
	if !ok {
		return model.ClientHandle{}, false
	}
	return *handle, true
}

// LookupByCaller returns every handle registered by a given bus peer.
func (r *Registry) LookupByCaller(callerIdentity string) []model.ClientHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	byProcess, ok := r.byCaller[callerIdentity]
	if !ok {
		return nil
	}
	handles := make([]model.ClientHandle, 0, len(byProcess))
	for _, id := range byProcess {
		handles = append(handles, *r.byHandle[id])
	}
	return handles
}

// OnPeerDisconnect unregisters every handle owned by callerIdentity, per
// §4.A. It returns the handle ids that were removed so the caller can fan
// out any bookkeeping (e.g. coordinator waiter cleanup) without the
// registry needing to know about those subsystems.
func (r *Registry) OnPeerDisconnect(callerIdentity string) []uint64 {
	r.mu.Lock()
	byProcess, ok := r.byCaller[callerIdentity]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	ids := make([]uint64, 0, len(byProcess))
	for _, id := range byProcess {
		ids = append(ids, id)
		delete(r.byHandle, id)
	}
	delete(r.byCaller, callerIdentity)
	r.mu.Unlock()

	for _, id := range ids {
		if r.onUnregister != nil {
			r.onUnregister(id)
		}
	}
	r.log.Infow("peer disconnected, unregistered handles", "caller", callerIdentity, "handles", ids)
	return ids
}

// Snapshot returns every currently registered handle, for the read-only
// debug/introspection surface (§12).
func (r *Registry) Snapshot() []model.ClientHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]model.ClientHandle, 0, len(r.byHandle))
	for _, h := range r.byHandle {
		handles = append(handles, *h)
	}
	return handles
}

// Validate returns NotRegisteredError if handleID is unknown. Components
// call this before acting on a handle, matching §4.A's failure model.
func (r *Registry) Validate(handleID uint64) error {
	if _, ok := r.Lookup(handleID); !ok {
		return &rfwerr.NotRegisteredError{HandleID: handleID}
	}
	return nil
}
