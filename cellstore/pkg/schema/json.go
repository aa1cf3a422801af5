package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

type document struct {
	Name                 string                      `json:"name"`
	TableEngine          TableEngine                 `json:"table_engine"`
	Compression          Compression                 `json:"compression"`
	BaseResolutions      []int                       `json:"h3_base_resolutions"`
	UseCompaction        bool                        `json:"use_compaction"`
	TemporalResolution   TemporalResolution          `json:"temporal_resolution"`
	TemporalPartitioning TemporalPartitioning        `json:"temporal_partitioning"`
	H3Partitioning       H3Partitioning              `json:"h3_partitioning"`
	Columns              map[string]ColumnDefinition `json:"columns"`
	PartitionBy          []string                    `json:"partition_by,omitempty"`
}

// MarshalJSON encodes the schema. Resolutions are written as numbers, encoding/json would turn a
// []uint8 into base64.
func (s *CompactedTableSchema) MarshalJSON() ([]byte, error) {
	resolutions := make([]int, len(s.baseResolutions))
	for i, r := range s.baseResolutions {
		resolutions[i] = int(r)
	}
	return json.Marshal(document{
		Name:                 s.name,
		TableEngine:          s.tableEngine,
		Compression:          s.compression,
		BaseResolutions:      resolutions,
		UseCompaction:        s.useCompaction,
		TemporalResolution:   s.temporalResolution,
		TemporalPartitioning: s.temporalPartitioning,
		H3Partitioning:       s.h3Partitioning,
		Columns:              s.columns,
		PartitionBy:          s.partitionBy,
	})
}

// UnmarshalJSON decodes and validates a schema.
func (s *CompactedTableSchema) UnmarshalJSON(data []byte) error {
	// fields missing from data keep the builder defaults
	doc := document{
		TableEngine:          ReplacingMergeTree(),
		Compression:          DefaultCompression(),
		UseCompaction:        true,
		TemporalResolution:   TemporalResolutionSecond,
		TemporalPartitioning: TemporalPartitionMonth,
		H3Partitioning:       BaseCellPartitioning(),
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	resolutions := make([]uint8, 0, len(doc.BaseResolutions))
	for _, r := range doc.BaseResolutions {
		if r < 0 || r > 255 {
			return invalid(RuleResolutions, "", "resolution %d is out of range", r)
		}
		resolutions = append(resolutions, uint8(r))
	}

	b := NewBuilder(doc.Name).
		TableEngine(doc.TableEngine).
		Compression(doc.Compression).
		BaseResolutions(resolutions...).
		UseCompaction(doc.UseCompaction).
		TemporalResolution(doc.TemporalResolution).
		TemporalPartitioning(doc.TemporalPartitioning).
		H3Partitioning(doc.H3Partitioning).
		PartitionBy(doc.PartitionBy...)
	for _, name := range slices.Sorted(maps.Keys(doc.Columns)) {
		b.AddColumn(name, doc.Columns[name])
	}

	built, err := b.Build()
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

// FromJSON decodes and validates a schema.
func FromJSON(data []byte) (*CompactedTableSchema, error) {
	var s CompactedTableSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return &s, nil
}
