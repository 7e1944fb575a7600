package nostrdb

import (
	"context"
	"testing"
	"time"

	"github.com/i5heu/ouroboros-nostrdb/internal/config"
	"github.com/i5heu/ouroboros-nostrdb/internal/testutil"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/i5heu/ouroboros-nostrdb/pkg/validator"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	root = testutil.Repeated(0x00)
	aa   = testutil.Repeated(0xAA)
	bb   = testutil.Repeated(0xBB)
	cc   = testutil.Repeated(0xCC)
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func startDB(t *testing.T, mutate func(*Config)) *NostrDB {
	t.Helper()
	conf := Config{
		Paths:                     []string{t.TempDir()},
		Logger:                    testLogger(),
		SkipSignatureVerification: true,
		StoreRawEvents:            true,
	}
	if mutate != nil {
		mutate(&conf)
	}
	db, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(context.Background()))
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func ingest(t *testing.T, db *NostrDB, raws ...[]byte) {
	t.Helper()
	for _, raw := range raws {
		ok, err := db.ProcessEvent(raw)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Sync(ctx))
}

func query(t *testing.T, db *NostrDB) *Query {
	t.Helper()
	q, err := db.BeginQuery()
	require.NoError(t, err)
	t.Cleanup(q.End)
	return q
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	negative := -1
	_, err = New(Config{Paths: []string{t.TempDir()}, MaxDistanceDepth: &negative})
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	db, err := New(Config{Paths: []string{t.TempDir()}, Logger: testLogger()})
	require.NoError(t, err)

	_, err = db.ProcessEvent(testutil.UnsignedContactList(t, aa, 1, 1, bb))
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = db.BeginQuery()
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, db.Start(context.Background()))
	require.NoError(t, db.Start(context.Background()))

	require.NoError(t, db.Close(context.Background()))
	require.NoError(t, db.Close(context.Background()))

	_, err = db.ProcessEvent(testutil.UnsignedContactList(t, aa, 1, 1, bb))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.GraphVersion()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	db, err := New(Config{Paths: []string{t.TempDir()}, Logger: testLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- db.Run(ctx) }()

	require.Eventually(t, func() bool { return db.started.Load() }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err = db.BeginQuery()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContactListScenario(t *testing.T) {
	db := startDB(t, nil)
	ingest(t, db, testutil.UnsignedContactList(t, aa, 1, 1234567890, bb, cc))

	q := query(t, db)
	following, err := db.IsFollowing(q, aa, bb)
	require.NoError(t, err)
	assert.True(t, following)

	following, err = db.IsFollowing(q, aa, cc)
	require.NoError(t, err)
	assert.True(t, following)

	following, err = db.IsFollowing(q, bb, aa)
	require.NoError(t, err)
	assert.False(t, following)

	n, err := db.FollowerCount(q, bb)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = db.FollowingCount(q, aa)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	followers, err := db.FollowersOf(q, cc)
	require.NoError(t, err)
	assert.Equal(t, []types.Identity{aa}, followers)

	followees, err := db.FolloweesOf(q, aa)
	require.NoError(t, err)
	assert.Equal(t, []types.Identity{bb, cc}, followees)

	raw, err := db.ContactList(q, aa)
	require.NoError(t, err)
	assert.Contains(t, string(raw), cc.String())

	_, err = db.ContactList(q, bb)
	assert.ErrorIs(t, err, ErrNoContactList)
}

func TestDistanceScenario(t *testing.T) {
	r := root
	db := startDB(t, func(c *Config) { c.Root = &r })
	ingest(t, db,
		testutil.UnsignedContactList(t, root, 1, 100, aa),
		testutil.UnsignedContactList(t, aa, 2, 100, bb),
	)

	q := query(t, db)
	for target, want := range map[types.Identity]types.Distance{root: 0, aa: 1, bb: 2, cc: types.Unreachable} {
		dist, err := db.DistanceFromRoot(q, target)
		require.NoError(t, err)
		assert.Equal(t, want, dist, target.String())
	}
}

func TestDistanceFromRoot_RequiresRoot(t *testing.T) {
	db := startDB(t, nil)
	q := query(t, db)
	_, err := db.DistanceFromRoot(q, aa)
	assert.ErrorIs(t, err, ErrNoRoot)

	dist, err := db.FollowDistance(q, aa, aa)
	require.NoError(t, err)
	assert.Equal(t, types.Distance(0), dist)
}

func TestDistance_ZeroDepthOnlyReachesRoot(t *testing.T) {
	r := root
	zero := 0
	db := startDB(t, func(c *Config) {
		c.Root = &r
		c.MaxDistanceDepth = &zero
	})
	ingest(t, db, testutil.UnsignedContactList(t, root, 1, 100, aa))

	q := query(t, db)
	dist, err := db.DistanceFromRoot(q, root)
	require.NoError(t, err)
	assert.Equal(t, types.Distance(0), dist)

	dist, err = db.DistanceFromRoot(q, aa)
	require.NoError(t, err)
	assert.Equal(t, types.Unreachable, dist)
}

func TestProcessEvent_CallerMayReuseBuffer(t *testing.T) {
	db := startDB(t, nil)
	raw := testutil.UnsignedContactList(t, aa, 1, 100, bb)
	want := append([]byte(nil), raw...)

	ok, err := db.ProcessEvent(raw)
	require.NoError(t, err)
	require.True(t, ok)
	for i := range raw {
		raw[i] = 'X'
	}
	ingest(t, db)

	q := query(t, db)
	stored, err := db.ContactList(q, aa)
	require.NoError(t, err)
	assert.Equal(t, want, stored)
	following, err := db.IsFollowing(q, aa, bb)
	require.NoError(t, err)
	assert.True(t, following)
}

func TestChainAndRetraction(t *testing.T) {
	db := startDB(t, nil)
	ingest(t, db,
		testutil.UnsignedContactList(t, root, 1, 100, aa),
		testutil.UnsignedContactList(t, aa, 2, 100, bb),
		testutil.UnsignedContactList(t, bb, 3, 100, cc),
	)

	q := query(t, db)
	dist, err := db.FollowDistance(q, root, cc)
	require.NoError(t, err)
	assert.Equal(t, types.Distance(3), dist)

	ingest(t, db, testutil.UnsignedContactList(t, aa, 4, 200))

	// the old query keeps its snapshot
	dist, err = db.FollowDistance(q, root, cc)
	require.NoError(t, err)
	assert.Equal(t, types.Distance(3), dist)

	q2 := query(t, db)
	for _, target := range []types.Identity{bb, cc} {
		dist, err := db.FollowDistance(q2, root, target)
		require.NoError(t, err)
		assert.Equal(t, types.Unreachable, dist)
	}
	assert.Greater(t, q2.Version(), q.Version())
}

func TestRejectsInvalidSignatureByDefault(t *testing.T) {
	db := startDB(t, func(c *Config) { c.SkipSignatureVerification = false })

	ok, err := db.ProcessEvent(testutil.UnsignedContactList(t, aa, 1, 100, bb))
	assert.False(t, ok)
	var verr *validator.VerificationError
	assert.ErrorAs(t, err, &verr)

	version, err := db.GraphVersion()
	require.NoError(t, err)
	assert.Equal(t, types.GraphVersion(0), version)

	q := query(t, db)
	following, err := db.IsFollowing(q, aa, bb)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestSignedContactList(t *testing.T) {
	db := startDB(t, func(c *Config) { c.SkipSignatureVerification = false })
	signer := testutil.NewSigner(t)

	ingest(t, db, signer.ContactList(t, 100, aa, bb))

	q := query(t, db)
	followees, err := db.FolloweesOf(q, signer.Identity)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Identity{aa, bb}, followees)
}

func TestWaitForVersion(t *testing.T) {
	db := startDB(t, nil)
	_, err := db.ProcessEvent(testutil.UnsignedContactList(t, aa, 1, 100, bb))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.WaitForVersion(ctx, 1))

	q := query(t, db)
	assert.GreaterOrEqual(t, q.Version(), types.GraphVersion(1))
}

func TestEndQueryTwice(t *testing.T) {
	db := startDB(t, nil)
	q, err := db.BeginQuery()
	require.NoError(t, err)
	db.EndQuery(q)
	assert.NotPanics(t, func() { q.End() })
	assert.Panics(t, func() { _, _ = db.IsFollowing(q, aa, bb) }, "ended queries are programmer errors")
}

func TestVerifyAndMetrics(t *testing.T) {
	db := startDB(t, nil)
	ingest(t, db,
		testutil.UnsignedContactList(t, aa, 1, 100, bb, cc),
		testutil.UnsignedContactList(t, bb, 2, 100, aa),
		testutil.UnsignedContactList(t, aa, 3, 200, cc),
	)
	require.NoError(t, db.Verify())

	families, err := db.Metrics().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["nostrdb_events_received_total"])
	assert.True(t, names["nostrdb_graph_version"])
}

func TestReopenKeepsGraph(t *testing.T) {
	dir := t.TempDir()
	conf := Config{Paths: []string{dir}, Logger: testLogger(), SkipSignatureVerification: true}

	db, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(context.Background()))
	ingest(t, db, testutil.UnsignedContactList(t, aa, 1, 100, bb))
	require.NoError(t, db.Close(context.Background()))

	db, err = New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(context.Background()))
	defer db.Close(context.Background())

	version, err := db.GraphVersion()
	require.NoError(t, err)
	assert.Equal(t, types.GraphVersion(1), version)

	q, err := db.BeginQuery()
	require.NoError(t, err)
	defer q.End()
	following, err := db.IsFollowing(q, aa, bb)
	require.NoError(t, err)
	assert.True(t, following)

	// replaying the same list after a restart changes nothing
	ok, err := db.ProcessEvent(testutil.UnsignedContactList(t, aa, 1, 100, bb))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, db.Sync(context.Background()))
	version, err = db.GraphVersion()
	require.NoError(t, err)
	assert.Equal(t, types.GraphVersion(1), version)
}

func TestConfigFromFile(t *testing.T) {
	f := config.Default()
	f.Root = root.String()
	f.SkipSignatureVerification = true

	c, err := ConfigFromFile(f)
	require.NoError(t, err)
	require.NotNil(t, c.Root)
	assert.Equal(t, root, *c.Root)
	assert.True(t, c.SkipSignatureVerification)
	assert.Equal(t, []string{f.DataPath}, c.Paths)
	require.NotNil(t, c.MaxDistanceDepth)
	assert.Equal(t, config.DefaultMaxDistanceDepth, *c.MaxDistanceDepth)

	f.Root = "zz"
	_, err = ConfigFromFile(f)
	assert.Error(t, err)
}
