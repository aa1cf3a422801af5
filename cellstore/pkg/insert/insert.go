// Package insert writes H3 cell data into a tableset. Rows are compacted, staged in temporary
// tables owned by one run, aggregated up to the coarser base resolutions and finally promoted into
// the tables of the tableset.
package insert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse/dataset"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/metrics"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
)

const (
	cleanupTimeout = 2 * time.Minute

	DefaultMaxRowsPerAggregationBatch = 1_000_000
)

type Config struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Grid   h3cell.Grid
	Clock  clockwork.Clock

	// NumConnections bounds the number of resolutions staged in parallel.
	NumConnections int
	// MaxRowsPerInsertChunk is the number of rows sent per batch while staging.
	MaxRowsPerInsertChunk int
	// MaxRowsPerAggregationBatch splits the aggregation of one resolution pair into batches of
	// about this many source rows. Defaults to DefaultMaxRowsPerAggregationBatch.
	MaxRowsPerAggregationBatch uint64
	// SkipDeduplication leaves duplicate rows to the background merges of the table engine.
	SkipDeduplication bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Grid == nil {
		cfg.Grid = h3cell.H3{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.NumConnections <= 0 {
		cfg.NumConnections = 3
	}
	if cfg.MaxRowsPerInsertChunk <= 0 {
		cfg.MaxRowsPerInsertChunk = dataset.DefaultChunkSize
	}
	if cfg.MaxRowsPerAggregationBatch == 0 {
		cfg.MaxRowsPerAggregationBatch = DefaultMaxRowsPerAggregationBatch
	}
	return nil
}

type Inserter struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Inserter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Inserter{log: cfg.Logger, cfg: cfg}, nil
}

type step struct {
	stage Stage
	fn    func(context.Context) error
}

// run holds the state of one Insert call.
type run struct {
	log    *slog.Logger
	cfg    Config
	schema *schema.CompactedTableSchema
	conn   clickhouse.Connection
	key    string

	// temporary tables created so far, in ResolutionMetadata order
	created  []schema.ResolutionMetadata
	promoted []schema.ResolutionMetadata
}

// Insert writes f into the tableset of s. f must contain the h3index column and may contain any
// subset of the other columns of s.
//
// On failure the error is a *StageError naming the failed stage; rows promoted before the failure
// stay in the tableset. The temporary tables of the run are dropped on every return path.
func (i *Inserter) Insert(ctx context.Context, s *schema.CompactedTableSchema, f *frame.Frame) (err error) {
	start := time.Now()
	r := &run{
		cfg:    i.cfg,
		schema: s,
		key:    NewTemporaryKey(i.cfg.Clock),
	}
	r.log = i.log.With("tableset", s.Name(), "key", r.key)

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.InsertTotal.WithLabelValues(s.Name(), status).Inc()
		r.log.Info("insert finished", "status", status, "duration", time.Since(start))
	}()

	var parts []staged
	err = r.stage(ctx, StageCompactAndSplit, func() error {
		var err error
		parts, err = compactAndSplit(i.cfg.Grid, s, f)
		return err
	})
	if err != nil {
		return err
	}

	conn, err := i.cfg.Client.Conn(ctx)
	if err != nil {
		return &StageError{Stage: StageCreateTempTables, Err: fmt.Errorf("failed to get connection: %w", err)}
	}
	defer conn.Close()
	r.conn = conn

	defer r.dropTemporaryTables(ctx)

	steps := []step{
		{StageCreateTempTables, func(ctx context.Context) error { return r.createTables(ctx, parts) }},
		{StageStageRows, func(ctx context.Context) error { return r.stageRows(ctx, parts) }},
		{StageAggregateUpward, r.aggregateUpward},
		{StagePromoteToFinal, r.promote},
	}
	if !i.cfg.SkipDeduplication {
		steps = append(steps, step{StageDeduplicate, r.deduplicate})
	}
	for _, step := range steps {
		if err := r.stage(ctx, step.stage, func() error { return step.fn(ctx) }); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn as stage and records its duration. A cancelled ctx fails the stage before fn runs.
func (r *run) stage(ctx context.Context, stage Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		metrics.InsertStageErrorsTotal.WithLabelValues(string(stage)).Inc()
		return &StageError{Stage: stage, Err: err}
	}
	start := time.Now()
	err := fn()
	metrics.InsertStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InsertStageErrorsTotal.WithLabelValues(string(stage)).Inc()
		r.log.Error("insert stage failed", "stage", stage, "error", err)
		return &StageError{Stage: stage, Err: err}
	}
	r.log.Debug("insert stage completed", "stage", stage, "duration", time.Since(start))
	return nil
}

// exec executes query unless ctx is done.
func (r *run) exec(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.log.Debug("executing", "query", query)
	return r.conn.Exec(ctx, query, args...)
}

func (r *run) tempTable(m schema.ResolutionMetadata) string {
	return r.schema.Table(m, r.key).Name()
}

// createTables ensures the tables of the tableset exist and creates the temporary tables up to the
// finest staged resolution. Coarser tables are needed as aggregation targets.
func (r *run) createTables(ctx context.Context, parts []staged) error {
	final, err := r.schema.BuildCreateStatements("")
	if err != nil {
		return err
	}
	for _, stmt := range final {
		if err := r.exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	var finest uint8
	for _, p := range parts {
		finest = max(finest, p.meta.H3Resolution)
	}
	temporary, err := r.schema.BuildCreateStatements(r.key)
	if err != nil {
		return err
	}
	for idx, m := range r.schema.ResolutionMetadata() {
		if m.H3Resolution > finest {
			continue
		}
		// recorded first, the server may have created the table even when the statement fails
		r.created = append(r.created, m)
		if err := r.exec(ctx, temporary[idx]); err != nil {
			return fmt.Errorf("failed to create temporary table %s: %w", r.tempTable(m), err)
		}
	}
	r.log.Debug("created temporary tables", "count", len(r.created))
	return nil
}

func (r *run) stageRows(ctx context.Context, parts []staged) error {
	g, gctx := errgroup.WithContext(clickhouse.ContextWithSyncInsert(ctx))
	g.SetLimit(r.cfg.NumConnections)
	for _, p := range parts {
		g.Go(func() error {
			table := r.tempTable(p.meta)
			if err := dataset.WriteFrame(gctx, r.log, r.conn, table, p.rows, r.cfg.MaxRowsPerInsertChunk); err != nil {
				return err
			}
			metrics.InsertRowsTotal.WithLabelValues(r.schema.Name()).Add(float64(p.rows.NumRows()))
			return nil
		})
	}
	return g.Wait()
}

// count returns the number of rows of the given temporary tables.
func (r *run) count(ctx context.Context, metas []schema.ResolutionMetadata) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tables := make([]string, len(metas))
	for i, m := range metas {
		tables[i] = r.tempTable(m)
	}
	counts, err := dataset.QueryUint64s(ctx, r.conn, BuildCountQuery(tables))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %v: %w", tables, err)
	}
	if len(counts) != 1 {
		return 0, fmt.Errorf("unexpected count result for %v", tables)
	}
	return counts[0], nil
}

// aggregateUpward fills the base temporary tables of the coarser base resolutions from the finer
// ones, walking from the finest pair to the coarsest so every step sees the previous result.
func (r *run) aggregateUpward(ctx context.Context) error {
	for _, pair := range aggregationPairs(r.schema.BaseResolutions()) {
		sources := aggregationSources(pair, r.created)
		if len(sources) == 0 {
			continue
		}
		rows, err := r.count(ctx, sources)
		if err != nil {
			return err
		}
		if rows == 0 {
			continue
		}

		sourceTables := make([]string, len(sources))
		for i, m := range sources {
			sourceTables[i] = r.tempTable(m)
		}
		target := r.schema.Table(schema.ResolutionMetadata{H3Resolution: pair.target}, r.key)
		batches := numAggregationBatches(rows, r.cfg.MaxRowsPerAggregationBatch)

		r.log.Debug("aggregating", "source", pair.source, "target", pair.target, "rows", rows, "batches", batches)
		for batch := range batches {
			query, err := BuildAggregationQuery(r.schema, sourceTables, target.Name(), pair.source, pair.target, batches, batch)
			if err != nil {
				return err
			}
			if err := r.exec(clickhouse.ContextWithSyncInsert(ctx), query); err != nil {
				return fmt.Errorf("failed to aggregate resolution %d into %d: %w", pair.source, pair.target, err)
			}
		}
	}
	return nil
}

// promote copies every non-empty temporary table into its final table.
func (r *run) promote(ctx context.Context) error {
	for _, m := range r.created {
		rows, err := r.count(ctx, []schema.ResolutionMetadata{m})
		if err != nil {
			return err
		}
		if rows == 0 {
			continue
		}
		tmp := r.schema.Table(m, r.key)
		if err := r.exec(clickhouse.ContextWithSyncInsert(ctx), BuildPromoteQuery(r.schema, tmp)); err != nil {
			return fmt.Errorf("failed to promote %s: %w", tmp.Name(), err)
		}
		r.log.Debug("promoted", "table", tmp.Name(), "rows", rows)
		r.promoted = append(r.promoted, m)
	}
	return nil
}

// deduplicate optimizes the partitions of the final tables touched by the promoted rows.
func (r *run) deduplicate(ctx context.Context) error {
	for _, m := range r.promoted {
		tmp := r.schema.Table(m, r.key)
		final := tmp.WithoutTemporaryKey()

		partitions, err := r.partitions(ctx, tmp.Name())
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			r.log.Warn("failed to list touched partitions, deduplicating whole table", "table", final.Name(), "error", err)
			partitions = nil
		}
		for _, stmt := range BuildDeduplicationStatements(final.Name(), partitions) {
			if err := r.exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to deduplicate %s: %w", final.Name(), err)
			}
		}
	}
	return nil
}

func (r *run) partitions(ctx context.Context, table string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.conn.Query(ctx, BuildPartitionsQuery(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// dropTemporaryTables removes the temporary tables of the run. It runs on a context detached from
// ctx so a cancelled insert still cleans up; failures are only logged.
func (r *run) dropTemporaryTables(ctx context.Context) {
	if len(r.created) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	start := time.Now()
	var failed bool
	for _, m := range slices.Backward(r.created) {
		table := r.tempTable(m)
		if err := r.conn.Exec(cleanupCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			failed = true
			r.log.Error("failed to drop temporary table", "table", table, "error", err)
		}
	}
	metrics.InsertStageDuration.WithLabelValues(string(StageDropTempTables)).Observe(time.Since(start).Seconds())
	if failed {
		metrics.InsertStageErrorsTotal.WithLabelValues(string(StageDropTempTables)).Inc()
	}
	r.created = nil
}
