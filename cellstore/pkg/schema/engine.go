package schema

import (
	"fmt"
	"strings"
)

// EngineKind is a MergeTree family table engine.
type EngineKind string

const (
	EngineReplacingMergeTree   EngineKind = "replacing_merge_tree"
	EngineSummingMergeTree     EngineKind = "summing_merge_tree"
	EngineAggregatingMergeTree EngineKind = "aggregating_merge_tree"
)

// TableEngine is the engine of every table of a tableset. Columns are the columns summed by a
// SummingMergeTree.
type TableEngine struct {
	Kind    EngineKind `json:"kind"`
	Columns []string   `json:"columns,omitempty"`
}

func ReplacingMergeTree() TableEngine {
	return TableEngine{Kind: EngineReplacingMergeTree}
}

func SummingMergeTree(columns ...string) TableEngine {
	return TableEngine{Kind: EngineSummingMergeTree, Columns: columns}
}

func AggregatingMergeTree() TableEngine {
	return TableEngine{Kind: EngineAggregatingMergeTree}
}

// RequiredColumns returns the schema columns the engine refers to.
func (e TableEngine) RequiredColumns() []string {
	if e.Kind == EngineSummingMergeTree {
		return e.Columns
	}
	return nil
}

// SQL renders the ENGINE clause value.
func (e TableEngine) SQL() (string, error) {
	switch e.Kind {
	case EngineReplacingMergeTree:
		return "ReplacingMergeTree()", nil
	case EngineSummingMergeTree:
		if len(e.Columns) == 0 {
			return "SummingMergeTree()", nil
		}
		return fmt.Sprintf("SummingMergeTree((%s))", strings.Join(e.Columns, ", ")), nil
	case EngineAggregatingMergeTree:
		return "AggregatingMergeTree()", nil
	}
	return "", fmt.Errorf("unknown table engine %q", e.Kind)
}
