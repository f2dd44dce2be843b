package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/parser"
)

// Conn is the subset of *pgx.Conn used by a session.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Options customises how statements are executed.
type Options struct {
	// Timeout bounds each statement; zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
	// ExplainOptions are placed inside EXPLAIN ( ... ).
	ExplainOptions []string
	// ShapeSetting is the server setting that forces a join-tree shape.
	ShapeSetting string
	PlanOptions  analyzer.Options
}

// OptionsFromConfig builds runner options from the active configuration.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) Options {
	return Options{
		Timeout:        cfg.Runner.Timeout(),
		Logger:         logger,
		ExplainOptions: cfg.Runner.ExplainOptions,
		ShapeSetting:   cfg.Runner.ShapeSetting,
		PlanOptions:    analyzer.OptionsFromConfig(cfg.Plan),
	}
}

func (o Options) withDefaults() Options {
	def := config.Default().Runner
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if len(o.ExplainOptions) == 0 {
		o.ExplainOptions = def.ExplainOptions
	}
	if strings.TrimSpace(o.ShapeSetting) == "" {
		o.ShapeSetting = def.ShapeSetting
	}
	if len(o.PlanOptions.JoinNodeTypes) == 0 && len(o.PlanOptions.SkipNodeTypes) == 0 {
		o.PlanOptions = analyzer.DefaultOptions()
	}
	return o
}

// Session owns one database connection for the duration of a batch.
type Session struct {
	conn Conn
	opts Options
}

// Open connects to dsn.
func Open(ctx context.Context, dsn string, opts Options) (*Session, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("runner: empty DSN")
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "runner: connect")
	}
	return NewSession(conn, opts), nil
}

// NewSession wraps an established connection.
func NewSession(conn Conn, opts Options) *Session {
	return &Session{conn: conn, opts: opts.withDefaults()}
}

// Close releases the connection.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}

func (s *Session) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return ctx, func() {}
}

// ExplainStatement prefixes the statement with EXPLAIN unless it already is one.
func ExplainStatement(sqlStatement string, options []string) string {
	query := strings.TrimSpace(sqlStatement)
	if strings.HasPrefix(strings.ToLower(query), "explain") {
		return query
	}
	return fmt.Sprintf("EXPLAIN (%s) %s", strings.Join(options, ", "), query)
}

// Explain runs EXPLAIN for the statement and returns the JSON document.
func (s *Session) Explain(ctx context.Context, sqlStatement string) ([]byte, error) {
	if strings.TrimSpace(sqlStatement) == "" {
		return nil, errors.New("runner: empty sql statement")
	}
	ctx, cancel := s.statementContext(ctx)
	defer cancel()

	var payload []byte
	if err := s.conn.QueryRow(ctx, ExplainStatement(sqlStatement, s.opts.ExplainOptions)).Scan(&payload); err != nil {
		return nil, errors.Wrap(err, "runner: query")
	}
	return payload, nil
}

// Exec runs the statement and returns how long it took on the wall clock.
func (s *Session) Exec(ctx context.Context, sqlStatement string) (time.Duration, error) {
	ctx, cancel := s.statementContext(ctx)
	defer cancel()

	start := time.Now()
	if _, err := s.conn.Exec(ctx, sqlStatement); err != nil {
		return 0, errors.Wrap(err, "runner: exec")
	}
	return time.Since(start), nil
}

// SetTreeShape forces the join-tree shape for the rest of the session.
func (s *Session) SetTreeShape(ctx context.Context, shape Shape) error {
	if _, err := ParseShape(string(shape)); err != nil {
		return err
	}
	setting, err := settingName(s.opts.ShapeSetting)
	if err != nil {
		return err
	}
	ctx, cancel := s.statementContext(ctx)
	defer cancel()

	stmt := fmt.Sprintf("SET %s TO '%s'", setting, shape)
	if _, err := s.conn.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "runner: set %s", s.opts.ShapeSetting)
	}
	return nil
}

// settingName quotes a dotted server setting name part by part.
func settingName(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	for _, part := range parts {
		if part == "" {
			return "", errors.Newf("runner: invalid setting name %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// ExplainAll explains every query in order and analyzes its plan. The batch
// stops at the first failure, which is reported as an errs.ExecutionError.
func ExplainAll(ctx context.Context, session *Session, queries []model.Query) ([]*model.QueryExecution, error) {
	logger := session.opts.Logger
	out := make([]*model.QueryExecution, 0, len(queries))
	for i, q := range queries {
		logger.Info("executing query", "query", q.ID, "index", i+1, "total", len(queries))

		raw, err := session.Explain(ctx, q.SQL)
		if err != nil {
			return out, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		plan, err := parser.ParseBytes(raw)
		if err != nil {
			return out, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		exec, err := analyzer.Analyze(q.ID, plan, session.opts.PlanOptions)
		if err != nil {
			return out, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		exec.SQL = q.SQL
		exec.Raw = raw
		out = append(out, exec)

		logger.Debug("query finished", "query", q.ID, "execution_ms", plan.ExecutionTime, "max_join_level", exec.MaxJoinLevel)
	}
	return out, nil
}

// Dialer opens a session; Open is used unless a test substitutes it.
type Dialer func(ctx context.Context, dsn string, opts Options) (*Session, error)

// RunShape executes every query under the given join-tree shape and records
// the server-reported execution time in seconds. The shape is validated
// before connecting and the connection is closed on every path.
func RunShape(ctx context.Context, dial Dialer, dsn string, queries []model.Query, shape string, opts Options) (*model.ConfigurationRun, error) {
	parsed, err := ParseShape(shape)
	if err != nil {
		return nil, err
	}
	if _, err := settingName(opts.withDefaults().ShapeSetting); err != nil {
		return nil, err
	}
	if dial == nil {
		dial = Open
	}
	session, err := dial(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close(context.WithoutCancel(ctx)) }()

	if err := session.SetTreeShape(ctx, parsed); err != nil {
		return nil, err
	}

	logger := session.opts.Logger.With("shape", string(parsed))
	run := model.NewConfigurationRun(string(parsed))
	for i, q := range queries {
		logger.Info("executing query", "query", q.ID, "index", i+1, "total", len(queries))

		raw, err := session.Explain(ctx, q.SQL)
		if err != nil {
			return nil, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		plan, err := parser.ParseBytes(raw)
		if err != nil {
			return nil, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		seconds := plan.ExecutionTime / 1000
		run.Set(q.ID, seconds)
		logger.Info("query finished", "query", q.ID, "seconds", seconds)
	}
	return run, nil
}

// RunTimed executes every query as-is and records its wall-clock time in seconds.
func RunTimed(ctx context.Context, session *Session, label string, queries []model.Query) (*model.ConfigurationRun, error) {
	logger := session.opts.Logger.With("config", label)
	run := model.NewConfigurationRun(label)
	for i, q := range queries {
		logger.Info("executing query", "query", q.ID, "index", i+1, "total", len(queries))

		elapsed, err := session.Exec(ctx, q.SQL)
		if err != nil {
			return nil, &errs.ExecutionError{QueryID: q.ID, Err: err}
		}
		run.Set(q.ID, elapsed.Seconds())
		logger.Info("query finished", "query", q.ID, "seconds", elapsed.Seconds())
	}
	return run, nil
}
