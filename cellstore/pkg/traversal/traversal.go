// Package traversal reads the data of an area from a tableset at one resolution. The area is cut
// into traversal cells of a coarser base resolution which are fetched concurrently by a pool of
// workers and streamed to the caller.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse/dataset"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/compaction"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/metrics"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/retry"
)

type Config struct {
	Logger   *slog.Logger
	Client   clickhouse.Client
	Grid     h3cell.Polyfiller
	TableSet *tableset.TableSet

	// Resolution is the resolution of the returned cells.
	Resolution uint8
	Area       Area

	// Query is the template run per traversal cell. TablePlaceholder is replaced by the rows of
	// the cell. Defaults to DefaultQuery.
	Query string
	// FilterQuery is an optional cheap template returning h3index values. Traversal cells without
	// any returned cell are skipped.
	FilterQuery        string
	PrefilterBatchSize int

	// MaxFetchCount bounds the number of cells at Resolution fetched per traversal cell.
	MaxFetchCount uint64
	NumWorkers    int
	// BufferSize is the capacity of the internal channels.
	BufferSize int

	// RestrictedUncompaction only materializes the requested cells when un-compacting.
	RestrictedUncompaction bool
	// DoNotUncompact returns the stored rows as they are.
	DoNotUncompact bool

	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.TableSet == nil {
		return errors.New("tableset is required")
	}
	if err := cfg.Area.validate(); err != nil {
		return err
	}
	if cfg.Grid == nil {
		cfg.Grid = h3cell.H3{}
	}
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.PrefilterBatchSize <= 0 {
		cfg.PrefilterBatchSize = 100
	}
	if cfg.MaxFetchCount == 0 {
		cfg.MaxFetchCount = 10_000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 3
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 2 * cfg.NumWorkers
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Result is the data of one traversal cell. Err is set when the cell could not be fetched.
type Result struct {
	Cell  uint64
	Frame *frame.Frame
	Err   error
}

// Stream delivers the results of a traversal. Results of different traversal cells arrive in no
// particular order. The stream must be consumed or closed; an unconsumed stream stalls the
// workers.
type Stream struct {
	results <-chan Result
	cancel  context.CancelFunc

	// TraversalResolution is the resolution of the traversal cells.
	TraversalResolution uint8
	// NumTraversalCells is the number of traversal cells before prefiltering.
	NumTraversalCells int
}

// Next blocks until the next result is available. ok is false once the traversal is complete.
func (s *Stream) Next() (Result, bool) {
	r, ok := <-s.results
	return r, ok
}

// All iterates over the remaining results. Stopping the iteration early closes the stream.
func (s *Stream) All() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for r := range s.results {
			if !yield(r) {
				s.Close()
				return
			}
		}
	}
}

// Close stops the traversal and waits for the producer and all workers to exit. It is safe to
// call Close more than once and after the stream is drained.
func (s *Stream) Close() {
	s.cancel()
	for range s.results {
	}
}

// Traverse starts a traversal of cfg.Area at cfg.Resolution. The traversal runs until the stream
// is drained or closed, or ctx is done.
func Traverse(ctx context.Context, cfg Config) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	traversalRes, err := SelectTraversalResolution(cfg.TableSet, cfg.Resolution, cfg.MaxFetchCount)
	if err != nil {
		return nil, err
	}
	cells, err := cfg.Area.TraversalCells(cfg.Grid, traversalRes)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate traversal cells: %w", err)
	}

	t := &traversal{
		log:          cfg.Logger.With("tableset", cfg.TableSet.Basename, "resolution", cfg.Resolution, "traversalResolution", traversalRes),
		cfg:          cfg,
		traversalRes: traversalRes,
	}
	if t.cfg.Retry.OnRetry == nil {
		t.cfg.Retry.OnRetry = func(attempt int, err error) {
			metrics.TraversalQueryRetriesTotal.Inc()
			t.log.Debug("retrying traversal query", "attempt", attempt, "error", err)
		}
	}
	if !cfg.Area.isPolygon() {
		requested, err := normalizeCells(cfg.Grid, cfg.Area.Cells, cfg.Resolution)
		if err != nil {
			return nil, err
		}
		t.requested = cellSet(requested)
	}

	conn, err := cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	t.conn = conn

	t.log.Debug("starting traversal", "cells", len(cells), "workers", cfg.NumWorkers)

	ctx, cancel := context.WithCancel(ctx)
	work := make(chan uint64, cfg.BufferSize)
	results := make(chan Result, cfg.BufferSize)

	var g errgroup.Group
	g.Go(func() error {
		defer close(work)
		t.produce(ctx, cells, work, results)
		return nil
	})
	for range cfg.NumWorkers {
		g.Go(func() error {
			for cell := range work {
				r, ok := t.fetch(ctx, cell)
				if !ok {
					continue
				}
				if !send(ctx, results, r) {
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		cancel()
		conn.Close()
		close(results)
	}()

	return &Stream{
		results:             results,
		cancel:              cancel,
		TraversalResolution: traversalRes,
		NumTraversalCells:   len(cells),
	}, nil
}

type traversal struct {
	log          *slog.Logger
	cfg          Config
	conn         clickhouse.Connection
	traversalRes uint8
	// requested holds the cells at the target resolution of a cell list area.
	requested map[uint64]struct{}
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// produce feeds the traversal cells to the workers, prefiltering them in batches when a filter
// query is configured. Prefilter failures are reported per traversal cell.
func (t *traversal) produce(ctx context.Context, cells []uint64, work chan<- uint64, results chan<- Result) {
	if t.cfg.FilterQuery == "" {
		for _, c := range cells {
			if !send(ctx, work, c) {
				return
			}
		}
		return
	}

	for start := 0; start < len(cells); start += t.cfg.PrefilterBatchSize {
		batch := cells[start:min(start+t.cfg.PrefilterBatchSize, len(cells))]
		keep, err := t.prefilter(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			for _, c := range batch {
				metrics.TraversalCellsTotal.WithLabelValues("error").Inc()
				if !send(ctx, results, Result{Cell: c, Err: fmt.Errorf("failed to prefilter: %w", err)}) {
					return
				}
			}
			continue
		}
		for _, c := range batch {
			if _, ok := keep[c]; !ok {
				metrics.TraversalCellsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			if !send(ctx, work, c) {
				return
			}
		}
	}
}

// prefilter returns the traversal cells of batch related to any cell returned by the filter query.
func (t *traversal) prefilter(ctx context.Context, batch []uint64) (map[uint64]struct{}, error) {
	source, err := sourceQuery(t.cfg.TableSet, t.cfg.Resolution, prefilterCondition(t.cfg.Grid, batch, t.traversalRes))
	if err != nil {
		return nil, err
	}
	query, err := RenderQuery(t.cfg.FilterQuery, source)
	if err != nil {
		return nil, err
	}

	var found *frame.Frame
	err = retry.Do(ctx, t.cfg.Retry, func() error {
		var err error
		found, err = dataset.QueryFrame(ctx, t.conn, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	cells, err := found.Uint64Column(tableset.H3IndexColumn)
	if err != nil {
		return nil, err
	}

	keep := make(map[uint64]struct{})
	for _, c := range cells {
		r := t.cfg.Grid.Resolution(c)
		if r >= t.traversalRes {
			p, err := t.cfg.Grid.Parent(c, t.traversalRes)
			if err != nil {
				return nil, err
			}
			keep[p] = struct{}{}
			continue
		}
		// a compacted row covers every traversal cell below it
		for _, b := range batch {
			if p, err := t.cfg.Grid.Parent(b, r); err == nil && p == c {
				keep[b] = struct{}{}
			}
		}
	}
	t.log.Debug("prefiltered traversal cells", "batch", len(batch), "kept", len(keep))
	return keep, nil
}

// fetch loads the rows of one traversal cell. ok is false when the cell holds no requested cells
// or no data.
func (t *traversal) fetch(ctx context.Context, cell uint64) (Result, bool) {
	start := time.Now()
	f, err := t.fetchFrame(ctx, cell)
	metrics.TraversalFetchDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return Result{}, false
		}
		metrics.TraversalCellsTotal.WithLabelValues("error").Inc()
		t.log.Warn("failed to fetch traversal cell", "cell", fmt.Sprintf("%x", cell), "error", err)
		return Result{Cell: cell, Err: err}, true
	case f == nil || f.NumRows() == 0:
		metrics.TraversalCellsTotal.WithLabelValues("empty").Inc()
		return Result{}, false
	}
	metrics.TraversalCellsTotal.WithLabelValues("ok").Inc()
	return Result{Cell: cell, Frame: f}, true
}

func (t *traversal) fetchFrame(ctx context.Context, cell uint64) (*frame.Frame, error) {
	children, err := t.cfg.Grid.Children(cell, t.cfg.Resolution)
	if err != nil {
		return nil, err
	}
	var cells []uint64
	for _, c := range children {
		ok, err := t.cfg.Area.contains(t.cfg.Grid, t.requested, c)
		if err != nil {
			return nil, err
		}
		if ok {
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return nil, nil
	}

	source, err := sourceQuery(t.cfg.TableSet, t.cfg.Resolution, fetchCondition(t.cfg.Grid, cells, t.cfg.Resolution))
	if err != nil {
		return nil, err
	}
	query, err := RenderQuery(t.cfg.Query, source)
	if err != nil {
		return nil, err
	}

	var f *frame.Frame
	err = retry.Do(ctx, t.cfg.Retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		f, err = dataset.QueryFrame(ctx, t.conn, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query traversal cell %x: %w", cell, err)
	}
	if t.cfg.DoNotUncompact || f.NumRows() == 0 {
		return f, nil
	}

	allowed := cellSet(cells)
	if t.cfg.RestrictedUncompaction {
		return compaction.UncompactRestricted(t.cfg.Grid, f, tableset.H3IndexColumn, t.cfg.Resolution, allowed)
	}
	uncompacted, err := compaction.Uncompact(t.cfg.Grid, f, tableset.H3IndexColumn, t.cfg.Resolution)
	if err != nil {
		return nil, err
	}
	return compaction.FilterCells(uncompacted, tableset.H3IndexColumn, allowed)
}
