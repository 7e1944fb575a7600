// Package ingester is the asynchronous contact list pipeline.
//
// ProcessEvent validates an event on the caller's goroutine and queues
// contact lists for a worker pool. A worker applies one author's list per
// write transaction: it re-reads the stored list version inside the
// transaction, writes the edge difference and commits. Callers that need to
// observe a list wait for it with WaitFor, Sync or WaitForVersion.
package ingester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/i5heu/ouroboros-nostrdb/internal/eventStore"
	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/socialgraph"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/i5heu/ouroboros-nostrdb/pkg/validator"
	workerpool "github.com/i5heu/ouroboros-nostrdb/pkg/workerPool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWorkers        = 1
	DefaultQueueSize      = 1024
	DefaultEnqueueTimeout = 250 * time.Millisecond
	DefaultMaxRetries     = 3
)

// putContactList stores the raw list next to the graph change.
var putContactList = eventStore.PutContactList

var (
	// ErrQueueFull is transient backpressure; the caller may retry.
	ErrQueueFull      = errors.New("ingester: queue full")
	ErrClosed         = errors.New("ingester: closed")
	ErrNotContactList = errors.New("ingester: not a contact list")
)

type Config struct {
	Store     *keyValStore.KeyValStore
	Graph     *socialgraph.Index
	Validator *validator.Validator

	Workers   int
	QueueSize int
	// EnqueueTimeout is how long ProcessEvent waits for a queue slot before
	// failing with ErrQueueFull. Negative means do not wait.
	EnqueueTimeout time.Duration
	// MaxRetries bounds the retries of a write that hit a transaction conflict.
	MaxRetries int
	// StoreRawEvents keeps the applied contact list bytes next to the graph.
	StoreRawEvents bool

	Logger     *logrus.Logger
	Registerer prometheus.Registerer
}

type Ingester struct {
	cfg     Config
	log     *logrus.Logger
	store   *keyValStore.KeyValStore
	graph   *socialgraph.Index
	valid   *validator.Validator
	pool    *workerpool.WorkerPool
	metrics *metrics

	mu          sync.Mutex
	closed      bool
	nextSeq     uint64
	outstanding map[uint64]struct{}
	// newest queued list version per author, for dropping superseded lists
	newest  map[types.Identity]types.ListVersion
	pending map[types.Identity]int
	// closed and replaced whenever a task settles
	changed chan struct{}
}

func New(cfg Config) (*Ingester, error) {
	if cfg.Store == nil || cfg.Graph == nil || cfg.Validator == nil {
		return nil, errors.New("ingester: store, graph and validator are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.EnqueueTimeout == 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	in := &Ingester{
		cfg:         cfg,
		log:         cfg.Logger,
		store:       cfg.Store,
		graph:       cfg.Graph,
		valid:       cfg.Validator,
		metrics:     newMetrics(),
		outstanding: map[uint64]struct{}{},
		newest:      map[types.Identity]types.ListVersion{},
		pending:     map[types.Identity]int{},
		changed:     make(chan struct{}),
	}

	if cfg.Registerer != nil {
		queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nostrdb_ingest_queue_depth",
			Help: "Contact lists waiting for a worker",
		}, func() float64 { return float64(in.Queued()) })
		running := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nostrdb_ingest_running",
			Help: "Contact lists a worker is applying right now",
		}, func() float64 { return float64(in.Running()) })
		graphVersion := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nostrdb_graph_version",
			Help: "Graph version of the latest commit",
		}, func() float64 { return float64(cfg.Store.Version()) })
		if err := in.metrics.register(cfg.Registerer, queueDepth, running, graphVersion); err != nil {
			return nil, fmt.Errorf("ingester: register metrics: %w", err)
		}
	}

	in.pool = workerpool.NewWorkerPool(workerpool.Config{
		WorkerCount:  cfg.Workers,
		GlobalBuffer: cfg.QueueSize,
	})

	in.log.WithFields(logrus.Fields{
		"workers":          in.pool.WorkerCount(),
		"queueSize":        cfg.QueueSize,
		"skipVerification": cfg.Validator.SkipsVerification(),
	}).Info("ingester started")

	return in, nil
}

// ProcessEvent validates raw and, for contact lists, queues it for the graph.
// It returns once the event is queued, not once it is committed. Non contact
// list events are accepted without further action.
func (in *Ingester) ProcessEvent(raw []byte) (bool, error) {
	in.metrics.received.Inc()

	ev, err := in.valid.Validate(raw)
	if err != nil {
		in.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
		in.log.WithFields(logrus.Fields{"error": err}).Warn("event rejected")
		return false, err
	}
	if !ev.IsContactList() {
		in.metrics.ignored.Inc()
		return true, nil
	}

	if _, err := in.Submit(ev); err != nil {
		in.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
		return false, err
	}
	return true, nil
}

func rejectReason(err error) string {
	var perr *validator.ParseError
	var verr *validator.VerificationError
	switch {
	case errors.As(err, &perr):
		return "parse"
	case errors.As(err, &verr):
		return "verification"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return "other"
}

// Submit queues an already validated contact list and returns its sequence
// number for WaitFor.
func (in *Ingester) Submit(ev *types.Event) (uint64, error) {
	if !ev.IsContactList() {
		return 0, ErrNotContactList
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return 0, ErrClosed
	}
	in.nextSeq++
	seq := in.nextSeq
	in.outstanding[seq] = struct{}{}
	in.pending[ev.Author]++
	in.mu.Unlock()

	task := func() { in.apply(seq, ev) }

	var err error
	if in.cfg.EnqueueTimeout < 0 {
		err = in.pool.TrySubmit(task)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), in.cfg.EnqueueTimeout)
		err = in.pool.Submit(ctx, task)
		cancel()
	}
	if err != nil {
		in.settle(seq, ev, false)
		if errors.Is(err, workerpool.ErrClosed) {
			return 0, ErrClosed
		}
		in.log.WithFields(logrus.Fields{
			"author": ev.Author.String(),
		}).Warn("ingest queue full")
		return 0, ErrQueueFull
	}

	in.markQueued(seq, ev)
	return seq, nil
}

// markQueued records ev as the newest queued list of its author. It runs only
// after the list is in the queue, so a list that never makes it there cannot
// cause an older queued list to be dropped.
func (in *Ingester) markQueued(seq uint64, ev *types.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, pending := in.outstanding[seq]; !pending {
		return
	}
	if cur, ok := in.newest[ev.Author]; !ok || ev.ListVersion().Newer(cur) {
		in.newest[ev.Author] = ev.ListVersion()
	}
}

// superseded reports whether a newer list of the same author is queued.
func (in *Ingester) superseded(ev *types.Event) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	newest, ok := in.newest[ev.Author]
	return ok && newest.Newer(ev.ListVersion())
}

func (in *Ingester) apply(seq uint64, ev *types.Event) {
	failed := false
	defer func() { in.settle(seq, ev, failed) }()

	fields := logrus.Fields{
		"author":    ev.Author.String(),
		"id":        ev.ID.String(),
		"createdAt": ev.Time().Format(time.RFC3339),
	}

	if in.superseded(ev) {
		in.metrics.superseded.Inc()
		in.log.WithFields(fields).Debug("contact list superseded while queued")
		return
	}

	followees := validator.FollowSet(ev)
	var diff types.EdgeDiff
	var applied bool

	for attempt := 0; ; attempt++ {
		version, err := in.store.Update(func(txn *keyValStore.Txn) error {
			var err error
			diff, applied, err = in.graph.SetFollowList(txn, ev.Author, ev.ListVersion(), followees)
			if err != nil {
				return err
			}
			if applied && in.cfg.StoreRawEvents {
				return putContactList(txn, ev)
			}
			return nil
		})
		if err == nil {
			fields["version"] = version
			break
		}
		if keyValStore.IsConflict(err) && attempt < in.cfg.MaxRetries {
			in.log.WithFields(fields).Debugf("retrying contact list after conflict: %v", err)
			continue
		}
		failed = true
		in.metrics.failed.Inc()
		in.log.WithFields(fields).Errorf("applying contact list failed: %v", err)
		return
	}

	if !applied {
		in.metrics.stale.Inc()
		in.log.WithFields(fields).Debug("contact list not newer than stored one")
		return
	}

	in.metrics.applied.Inc()
	in.metrics.edgesAdded.Add(float64(len(diff.Added)))
	in.metrics.edgesRemoved.Add(float64(len(diff.Removed)))
	if diff.Empty() {
		in.log.WithFields(fields).Debug("contact list applied without edge changes")
		return
	}
	fields["added"] = len(diff.Added)
	fields["removed"] = len(diff.Removed)
	in.log.WithFields(fields).Debug("contact list applied")
}

// settle marks seq as finished and wakes waiters. A list that failed is
// forgotten as newest, so older queued lists of the author still apply.
func (in *Ingester) settle(seq uint64, ev *types.Event, failed bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	delete(in.outstanding, seq)
	in.pending[ev.Author]--
	if in.pending[ev.Author] <= 0 {
		delete(in.pending, ev.Author)
		delete(in.newest, ev.Author)
	} else if failed && in.newest[ev.Author] == ev.ListVersion() {
		delete(in.newest, ev.Author)
	}

	close(in.changed)
	in.changed = make(chan struct{})
}

// wait blocks until done returns true, re-checking whenever a task settles.
func (in *Ingester) wait(ctx context.Context, done func() bool) error {
	for {
		in.mu.Lock()
		ch := in.changed
		ok := done()
		in.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitFor blocks until the list with sequence number seq was committed,
// found stale or dropped.
func (in *Ingester) WaitFor(ctx context.Context, seq uint64) error {
	return in.wait(ctx, func() bool {
		_, pending := in.outstanding[seq]
		return !pending
	})
}

// Sync blocks until every list submitted before the call has settled.
func (in *Ingester) Sync(ctx context.Context) error {
	in.mu.Lock()
	target := in.nextSeq
	in.mu.Unlock()

	return in.wait(ctx, func() bool {
		for seq := range in.outstanding {
			if seq <= target {
				return false
			}
		}
		return true
	})
}

// WaitForVersion blocks until the store committed graph version v.
func (in *Ingester) WaitForVersion(ctx context.Context, v types.GraphVersion) error {
	return in.wait(ctx, func() bool {
		return in.store.Version() >= v
	})
}

// Queued is the number of lists waiting for a worker.
func (in *Ingester) Queued() int {
	return in.pool.Queued()
}

// Running is the number of lists being applied right now.
func (in *Ingester) Running() int {
	if in.pool == nil {
		return 0
	}
	return in.pool.Running()
}

// Close stops accepting events and waits until the queued lists are applied.
func (in *Ingester) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()

	in.pool.Close()
	in.log.Info("ingester stopped")
}
