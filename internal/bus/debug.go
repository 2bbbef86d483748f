// Package bus implements the read-only debug/introspection surface named in
// §12: a loopback-only HTTP endpoint exposing current registry contents,
// the cached XConf response, and active job snapshots as JSON. It sits
// alongside the D-Bus contract served by internal/daemon rather than
// replacing it, in the shape of the teacher's internals/daemon Command
// table, adapted from its state-engine-backed REST handlers to these
// read-only component snapshots.
package bus

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/handleregistry"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/jobs"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/xconfcache"
)

// DebugServer hosts the loopback diagnostics HTTP surface.
type DebugServer struct {
	log      *zap.SugaredLogger
	registry *handleregistry.Registry
	pool     *jobs.Pool
	cache    *xconfcache.Cache
	router   *mux.Router
}

func NewDebugServer(log *zap.SugaredLogger, registry *handleregistry.Registry, pool *jobs.Pool, cache *xconfcache.Cache) *DebugServer {
	s := &DebugServer{log: log, registry: registry, pool: pool, cache: cache}
	r := mux.NewRouter()
	r.HandleFunc("/debug/handles", s.handleHandles).Methods(http.MethodGet)
	r.HandleFunc("/debug/jobs", s.handleJobs).Methods(http.MethodGet)
	r.HandleFunc("/debug/cache", s.handleCache).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *DebugServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *DebugServer) handleHandles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.registry.Snapshot())
}

type jobSnapshot struct {
	Kind     jobs.Kind `json:"kind"`
	HandleID uint64    `json:"handleId"`
	Key      string    `json:"key"`
	Progress int       `json:"progress"`
}

func (s *DebugServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	var snapshots []jobSnapshot
	for _, kind := range []jobs.Kind{jobs.KindDownload, jobs.KindFlash} {
		if job, ok := s.pool.Active(kind); ok {
			snapshots = append(snapshots, jobSnapshot{
				Kind:     job.Kind,
				HandleID: job.HandleID,
				Key:      job.Key,
				Progress: job.Progress(),
			})
		}
	}
	writeJSON(w, snapshots)
}

func (s *DebugServer) handleCache(w http.ResponseWriter, r *http.Request) {
	resp, outcome, err := s.cache.Read()
	if err != nil {
		s.log.Warnw("debug cache read failed", "err", err)
	}
	writeJSON(w, map[string]interface{}{
		"outcome":  outcome,
		"response": resp,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
