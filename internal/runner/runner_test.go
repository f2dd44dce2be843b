package runner_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/runner"
	"github.com/mickamy/cardest/test"
)

type fakeRow struct {
	payload []byte
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.payload
	return nil
}

// fakeConn answers EXPLAIN statements with the plan registered for the
// first matching SQL fragment.
type fakeConn struct {
	plans    map[string][]byte
	failOn   string
	executed []string
	closed   bool
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.executed = append(c.executed, sql)
	if c.failOn != "" && strings.Contains(sql, c.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.executed = append(c.executed, sql)
	if c.failOn != "" && strings.Contains(sql, c.failOn) {
		return fakeRow{err: errors.New("boom")}
	}
	for fragment, plan := range c.plans {
		if strings.Contains(sql, fragment) {
			return fakeRow{payload: plan}
		}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func samplePlan(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(test.SamplePath(t, rel))
	require.NoError(t, err)
	return data
}

func queries() []model.Query {
	return []model.Query{
		{ID: "q1", SQL: "select count(*) from orders"},
		{ID: "q2", SQL: "select * from orders join customers using (id)"},
	}
}

func newFake(t *testing.T) *fakeConn {
	return &fakeConn{plans: map[string][]byte{
		"count(*)":  samplePlan(t, "agg_single.json"),
		"customers": samplePlan(t, "simple_join.json"),
	}}
}

func TestExplainStatement(t *testing.T) {
	opts := config.Default().Runner.ExplainOptions
	assert.Equal(t,
		"EXPLAIN (ANALYZE, COSTS, VERBOSE, BUFFERS, FORMAT JSON) select 1",
		runner.ExplainStatement("  select 1\n", opts))
	assert.Equal(t, "explain select 1", runner.ExplainStatement("explain select 1", opts))
	assert.Equal(t, "EXPLAIN (FORMAT JSON) select 1", runner.ExplainStatement("EXPLAIN (FORMAT JSON) select 1", opts))
}

func TestParseShape(t *testing.T) {
	for _, s := range []string{"default", "left", "right", "zig-zag", " Left "} {
		_, err := runner.ParseShape(s)
		assert.NoError(t, err, s)
	}

	_, err := runner.ParseShape("bushy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
	var cfgErr *errs.InvalidConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bushy", cfgErr.Value)
	assert.Equal(t, []string{"default", "left", "right", "zig-zag"}, cfgErr.Accepted)
}

func TestExplainAll(t *testing.T) {
	conn := newFake(t)
	session := runner.NewSession(conn, runner.Options{})

	execs, err := runner.ExplainAll(context.Background(), session, queries())
	require.NoError(t, err)
	require.Len(t, execs, 2)

	assert.Equal(t, "q1", execs[0].QueryID)
	assert.Equal(t, 0, execs[0].MaxJoinLevel)
	assert.Len(t, execs[0].Records, 1)
	assert.Equal(t, "select count(*) from orders", execs[0].SQL)
	assert.NotEmpty(t, execs[0].Raw)

	assert.Equal(t, 1, execs[1].MaxJoinLevel)
	assert.Len(t, execs[1].Records, 4)

	require.Len(t, conn.executed, 2)
	assert.True(t, strings.HasPrefix(conn.executed[0], "EXPLAIN (ANALYZE, COSTS, VERBOSE, BUFFERS, FORMAT JSON) "))
}

func TestExplainAllStopsAtFirstFailure(t *testing.T) {
	conn := newFake(t)
	conn.failOn = "count(*)"
	session := runner.NewSession(conn, runner.Options{})

	execs, err := runner.ExplainAll(context.Background(), session, queries())
	require.Error(t, err)
	assert.Empty(t, execs)
	assert.Len(t, conn.executed, 1)

	var execErr *errs.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "q1", execErr.QueryID)
	assert.True(t, errors.Is(err, errs.ErrExecution))
}

func TestExplainAllMalformedPlan(t *testing.T) {
	conn := &fakeConn{plans: map[string][]byte{"select": samplePlan(t, "malformed_missing_rows.json")}}
	session := runner.NewSession(conn, runner.Options{})

	_, err := runner.ExplainAll(context.Background(), session, queries()[:1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrExecution))
	assert.True(t, errors.Is(err, errs.ErrMalformedPlan))
}

func dialer(conn *fakeConn, dialed *bool) runner.Dialer {
	return func(_ context.Context, _ string, opts runner.Options) (*runner.Session, error) {
		*dialed = true
		return runner.NewSession(conn, opts), nil
	}
}

func TestRunShape(t *testing.T) {
	conn := newFake(t)
	var dialed bool

	run, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries(), "zig-zag", runner.Options{})
	require.NoError(t, err)

	assert.True(t, dialed)
	assert.True(t, conn.closed)
	assert.Equal(t, `SET "pg_hint_plan"."dp_tree_shape" TO 'zig-zag'`, conn.executed[0])

	assert.Equal(t, "zig-zag", run.Config)
	assert.Equal(t, []string{"q1", "q2"}, run.IDs())
	q2, ok := run.Get("q2")
	require.True(t, ok)
	assert.InDelta(t, 0.00205, q2, 1e-12)
}

func TestRunShapeRejectsUnknownShapeBeforeConnecting(t *testing.T) {
	conn := newFake(t)
	var dialed bool

	_, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries(), "bushy", runner.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
	assert.False(t, dialed)
	assert.Empty(t, conn.executed)
}

func TestRunShapeClosesOnFailure(t *testing.T) {
	conn := newFake(t)
	conn.failOn = "customers"
	var dialed bool

	_, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries(), "left", runner.Options{})
	require.Error(t, err)

	var execErr *errs.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "q2", execErr.QueryID)
	assert.True(t, conn.closed)
}

func TestRunShapeCustomSetting(t *testing.T) {
	conn := newFake(t)
	var dialed bool

	_, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries()[:1], "left",
		runner.Options{ShapeSetting: "my.shape", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, `SET "my"."shape" TO 'left'`, conn.executed[0])
}

func TestRunShapeQuotesSettingName(t *testing.T) {
	conn := newFake(t)
	var dialed bool

	_, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries()[:1], "left",
		runner.Options{ShapeSetting: `x TO 'y'; DROP TABLE t; --"`})
	require.NoError(t, err)
	assert.Equal(t, `SET "x TO 'y'; DROP TABLE t; --""" TO 'left'`, conn.executed[0])
}

func TestRunShapeRejectsEmptySettingPart(t *testing.T) {
	conn := newFake(t)
	var dialed bool

	_, err := runner.RunShape(context.Background(), dialer(conn, &dialed), "postgres://test", queries(), "left",
		runner.Options{ShapeSetting: "pg_hint_plan..dp_tree_shape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid setting name")
	assert.False(t, dialed)
}

func TestRunTimed(t *testing.T) {
	conn := newFake(t)
	session := runner.NewSession(conn, runner.Options{})

	run, err := runner.RunTimed(context.Background(), session, "dir1", queries())
	require.NoError(t, err)
	assert.Equal(t, "dir1", run.Config)
	assert.Equal(t, 2, run.Len())
	assert.Equal(t, "select count(*) from orders", conn.executed[0])

	elapsed, ok := run.Get("q1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 0.0)
}

func TestRunTimedFailure(t *testing.T) {
	conn := newFake(t)
	conn.failOn = "customers"
	session := runner.NewSession(conn, runner.Options{})

	_, err := runner.RunTimed(context.Background(), session, "dir1", queries())
	var execErr *errs.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "q2", execErr.QueryID)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := runner.Open(context.Background(), " ", runner.Options{})
	require.Error(t, err)
}
