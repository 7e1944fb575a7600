// Package distance answers follow-distance queries with a bounded breadth
// first search over the social graph.
//
// BFS state is memoized per root and bound to the graph version of the
// snapshot it was computed from. A query against a newer version replaces the
// whole per-root state instead of repairing it.
package distance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/socialgraph"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxDepth   = 6
	DefaultCacheRoots = 1024
)

type Config struct {
	// MaxDepth bounds the search. Targets further away than MaxDepth hops are
	// reported as unreachable even if a longer path exists. Nil selects
	// DefaultMaxDepth; zero only reaches the root itself.
	MaxDepth *int
	// CacheRoots is the number of roots whose BFS state is kept.
	CacheRoots int64
	Logger     *logrus.Logger
	// Registerer receives the cache metrics. Nil disables registration.
	Registerer prometheus.Registerer
}

type Engine struct {
	ix       *socialgraph.Index
	log      *logrus.Logger
	maxDepth uint32
	cache    *ristretto.Cache

	hits   prometheus.Counter
	misses prometheus.Counter
}

// rootState is an in-progress or finished BFS from root as of version.
// dist holds every identity discovered so far, frontier the identities at
// depth that have not been expanded yet.
type rootState struct {
	mu       sync.Mutex
	root     types.Identity
	version  types.GraphVersion
	dist     map[types.Identity]types.Distance
	frontier []types.Identity
	depth    uint32
	done     bool
}

func New(ix *socialgraph.Index, cfg Config) (*Engine, error) {
	if ix == nil {
		return nil, errors.New("distance: nil social graph index")
	}
	maxDepth := DefaultMaxDepth
	if cfg.MaxDepth != nil {
		maxDepth = *cfg.MaxDepth
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("distance: negative max depth %d", maxDepth)
	}
	if cfg.CacheRoots <= 0 {
		cfg.CacheRoots = DefaultCacheRoots
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.CacheRoots * 10,
		MaxCost:            cfg.CacheRoots,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("distance: create cache: %w", err)
	}

	e := &Engine{
		ix:       ix,
		log:      cfg.Logger,
		maxDepth: uint32(maxDepth),
		cache:    cache,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_distance_cache_hits_total",
			Help: "Distance queries answered from memoized BFS state",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nostrdb_distance_cache_misses_total",
			Help: "Distance queries that started a new BFS",
		}),
	}
	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(e.hits); err != nil {
			return nil, fmt.Errorf("distance: register metrics: %w", err)
		}
		if err := cfg.Registerer.Register(e.misses); err != nil {
			return nil, fmt.Errorf("distance: register metrics: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) MaxDepth() int {
	return int(e.maxDepth)
}

// Distance returns the number of follow hops on the shortest path from root
// to target in the snapshot of txn, or types.Unreachable.
func (e *Engine) Distance(txn *keyValStore.Txn, root, target types.Identity) (types.Distance, error) {
	if root == target {
		return 0, nil
	}

	st := e.state(txn.Version(), root)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.find(txn, e.ix, target, e.maxDepth)
}

// state returns the memoized BFS state of root for version, replacing an
// older one. Readers on a snapshot older than the cached state get a private
// state that is not cached.
func (e *Engine) state(version types.GraphVersion, root types.Identity) *rootState {
	key := string(root[:])
	if v, ok := e.cache.Get(key); ok {
		st := v.(*rootState)
		if st.version == version {
			e.hits.Inc()
			return st
		}
		if st.version > version {
			e.misses.Inc()
			return newRootState(root, version)
		}
	}

	e.misses.Inc()
	st := newRootState(root, version)
	e.cache.Set(key, st, 1)
	return st
}

func newRootState(root types.Identity, version types.GraphVersion) *rootState {
	return &rootState{
		root:     root,
		version:  version,
		dist:     map[types.Identity]types.Distance{root: 0},
		frontier: []types.Identity{root},
	}
}

func (st *rootState) find(txn *keyValStore.Txn, ix *socialgraph.Index, target types.Identity, maxDepth uint32) (types.Distance, error) {
	for {
		if d, ok := st.dist[target]; ok {
			return d, nil
		}
		if st.done {
			return types.Unreachable, nil
		}
		if err := st.expand(txn, ix, maxDepth); err != nil {
			return types.Unreachable, err
		}
	}
}

// expand discovers the next BFS level. The level is merged into the state
// only once it was read completely, so a failed read leaves the state as it
// was.
func (st *rootState) expand(txn *keyValStore.Txn, ix *socialgraph.Index, maxDepth uint32) error {
	if st.depth >= maxDepth || len(st.frontier) == 0 {
		st.done = true
		st.frontier = nil
		return nil
	}

	var next []types.Identity
	seen := make(map[types.Identity]struct{})
	for _, u := range st.frontier {
		err := ix.EachFollowee(txn, u, func(w types.Identity) error {
			if _, ok := st.dist[w]; ok {
				return nil
			}
			if _, ok := seen[w]; ok {
				return nil
			}
			seen[w] = struct{}{}
			next = append(next, w)
			return nil
		})
		if err != nil {
			return fmt.Errorf("expand %s at depth %d: %w", u, st.depth, err)
		}
	}

	st.depth++
	for _, w := range next {
		st.dist[w] = types.Distance(st.depth)
	}
	st.frontier = next
	if len(next) == 0 {
		st.done = true
	}
	return nil
}

// Invalidate drops the memoized state of root.
func (e *Engine) Invalidate(root types.Identity) {
	e.cache.Del(string(root[:]))
}

// Purge drops all memoized state.
func (e *Engine) Purge() {
	e.cache.Clear()
}

func (e *Engine) Close() {
	e.cache.Close()
}
