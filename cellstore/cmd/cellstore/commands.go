package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/uber/h3-go/v4"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/catalog"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/traversal"
)

func readSchema(path string) (*schema.CompactedTableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	s, err := schema.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema in %s: %w", path, err)
	}
	return s, nil
}

func printDDL(path string) error {
	s, err := readSchema(path)
	if err != nil {
		return err
	}
	statements, err := s.BuildCreateStatements("")
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		fmt.Printf("%s;\n\n", stmt)
	}
	return nil
}

func createTableSet(ctx context.Context, cat *catalog.Catalog, path string, dryRun bool) error {
	s, err := readSchema(path)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("[DRY RUN] Would create %d table(s) of tableset %s\n", len(s.ResolutionMetadata()), s.Name())
		return nil
	}
	if err := cat.CreateTableSet(ctx, s); err != nil {
		return err
	}
	fmt.Printf("Created tableset %s\n", s.Name())
	return nil
}

func listTableSets(ctx context.Context, cat *catalog.Catalog) error {
	sets, err := cat.TableSets(ctx)
	if err != nil {
		return err
	}
	registered, err := cat.ListSchemas(ctx)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Println("No tablesets found")
		return nil
	}
	for _, name := range registered {
		if _, ok := sets[name]; !ok {
			fmt.Printf("  ⚠ schema %s is registered but has no tables\n", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(sets)) {
		ts := sets[name]
		fmt.Printf("%s\n", name)
		fmt.Printf("  base resolutions:      %v\n", ts.BaseResolutions())
		fmt.Printf("  compacted resolutions: %v\n", ts.CompactedResolutions())
		fmt.Printf("  columns:               %s\n", strings.Join(ts.ColumnNames(), ", "))
	}
	return nil
}

func dropTableSet(ctx context.Context, cat *catalog.Catalog, name, database string, dryRun, skipConfirm bool) error {
	statements, err := cat.DropTableSetStatements(ctx, name)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		fmt.Printf("No tables found for tableset %s\n", name)
	}
	for _, stmt := range statements {
		fmt.Printf("  - %s\n", stmt)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would execute the above statements")
		return nil
	}

	if !skipConfirm {
		ok, err := confirm(fmt.Sprintf("This will drop %d table(s) of tableset %s in database '%s'", len(statements), name, database))
		if err != nil || !ok {
			return err
		}
	}

	dropped, err := cat.DropTableSet(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("Dropped %d table(s)\n", len(dropped))
	return nil
}

// confirm asks the user to type 'yes'. It returns false when the answer is anything else.
func confirm(warning string) (bool, error) {
	fmt.Printf("\n⚠️  %s\n", warning)
	fmt.Printf("Type 'yes' to confirm: ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	if response != "yes" {
		fmt.Printf("\nConfirmation failed. Operation cancelled.\n")
		return false, nil
	}
	fmt.Println()
	return true, nil
}

func migrateDown(ctx context.Context, log *slog.Logger, cfg clickhouse.Config, dryRun, skipConfirm bool) error {
	if dryRun {
		fmt.Printf("[DRY RUN] Would roll back the most recent migration of database '%s'\n", cfg.Database)
		return nil
	}
	if !skipConfirm {
		ok, err := confirm(fmt.Sprintf("This will roll back the most recent migration of database '%s'", cfg.Database))
		if err != nil || !ok {
			return err
		}
	}
	return clickhouse.Down(ctx, log, cfg)
}

type traverseOptions struct {
	name        string
	resolution  uint8
	cells       []string
	areaFile    string
	query       string
	filterQuery string
	workers     int
}

func traverse(ctx context.Context, log *slog.Logger, client clickhouse.Client, cat *catalog.Catalog, opts traverseOptions) error {
	sets, err := cat.TableSets(ctx)
	if err != nil {
		return err
	}
	ts, ok := sets[opts.name]
	if !ok {
		return fmt.Errorf("tableset %s not found", opts.name)
	}

	var area traversal.Area
	switch {
	case opts.areaFile != "" && len(opts.cells) > 0:
		return errors.New("--area and --cells are mutually exclusive")
	case opts.areaFile != "":
		area.Polygon, err = readPolygon(opts.areaFile)
		if err != nil {
			return err
		}
	default:
		for _, s := range opts.cells {
			cell := h3.Cell(h3.IndexFromString(s))
			if !cell.IsValid() {
				return fmt.Errorf("invalid h3 cell %q", s)
			}
			area.Cells = append(area.Cells, uint64(cell))
		}
	}

	stream, err := traversal.Traverse(ctx, traversal.Config{
		Logger:      log,
		Client:      client,
		TableSet:    ts,
		Resolution:  opts.resolution,
		Area:        area,
		Query:       opts.query,
		FilterQuery: opts.filterQuery,
		NumWorkers:  opts.workers,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	log.Info("traversing", "tableset", opts.name, "traversalResolution", stream.TraversalResolution, "cells", stream.NumTraversalCells)
	var rows, failed int
	for r := range stream.All() {
		cell := h3.Cell(r.Cell).String()
		if r.Err != nil {
			failed++
			fmt.Printf("%s\terror: %v\n", cell, r.Err)
			continue
		}
		rows += r.Frame.NumRows()
		fmt.Printf("%s\t%d\n", cell, r.Frame.NumRows())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Printf("\n%d row(s), %d failed traversal cell(s)\n", rows, failed)
	if failed > 0 {
		return fmt.Errorf("%d traversal cell(s) failed", failed)
	}
	return nil
}

// readPolygon reads a GeoJSON Polygon, as a bare geometry or as a feature.
func readPolygon(path string) (orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read area file: %w", err)
	}
	var geometry orb.Geometry
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geometry = f.Geometry
	} else {
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("invalid GeoJSON in %s: %w", path, err)
		}
		geometry = g.Geometry()
	}
	if geometry == nil {
		return nil, fmt.Errorf("area in %s has no geometry", path)
	}
	polygon, ok := geometry.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("area in %s is a %s, not a Polygon", path, geometry.GeoJSONType())
	}
	return polygon, nil
}
