package nostrdb

import (
	"fmt"
	"os"
	"time"

	"github.com/i5heu/ouroboros-nostrdb/internal/config"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/sirupsen/logrus"
)

// Config configures the database instance. Only Paths[0] is used at the
// moment.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked when the store opens.
	MinimumFreeGB uint
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger is an optional logger. If nil, a stderr logger at Info level is used.
	Logger *logrus.Logger

	// SkipSignatureVerification accepts events without checking their id and
	// signature. Only for trusted bulk loads and tests.
	SkipSignatureVerification bool
	// MaxDistanceDepth bounds follow-distance searches. Nil means the default
	// of 6; zero restricts every search to the root itself.
	MaxDistanceDepth *int
	// DistanceCacheRoots is the number of roots whose search state is memoized.
	DistanceCacheRoots int64
	// Root is the identity DistanceFromRoot measures from. Nil disables it.
	Root *types.Identity

	// Workers and QueueSize size the ingestion pipeline.
	Workers   int
	QueueSize int
	// EnqueueTimeout is how long ProcessEvent waits for a queue slot.
	// Negative means fail immediately with ErrQueueFull.
	EnqueueTimeout time.Duration
	// StoreRawEvents keeps the latest contact list of every author.
	StoreRawEvents bool
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// ConfigFromFile converts a loaded configuration file into a Config.
func ConfigFromFile(f config.Config) (Config, error) {
	c := Config{
		Paths:                     []string{f.DataPath},
		MinimumFreeGB:             uint(f.MinimumFreeGB),
		SyncWrites:                f.SyncWrites,
		SkipSignatureVerification: f.SkipSignatureVerification,
		DistanceCacheRoots:        f.DistanceCacheRoots,
		Workers:                   f.Workers,
		QueueSize:                 f.QueueSize,
		EnqueueTimeout:            f.EnqueueTimeout,
		StoreRawEvents:            f.StoreRawEvents,
	}

	if f.MaxDistanceDepth != nil {
		depth := *f.MaxDistanceDepth
		c.MaxDistanceDepth = &depth
	}

	if f.Root != "" {
		root, err := types.ParseIdentity(f.Root)
		if err != nil {
			return Config{}, fmt.Errorf("root: %w", err)
		}
		c.Root = &root
	}

	level, err := logrus.ParseLevel(f.LogLevel)
	if err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}
	c.Logger = defaultLogger()
	c.Logger.SetLevel(level)

	return c, nil
}
