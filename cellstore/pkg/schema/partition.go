package schema

import (
	"fmt"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
)

// H3PartitioningMode selects the spatial partition expression.
type H3PartitioningMode string

const (
	// H3PartitionBaseCell partitions by the resolution 0 base cell (122 partitions at most).
	H3PartitionBaseCell H3PartitioningMode = "basecell"
	// H3PartitionLowerResolution partitions by the ancestor at a fixed resolution. Tables at or
	// below that resolution partition by the cell itself.
	H3PartitionLowerResolution H3PartitioningMode = "lower_resolution"
)

type H3Partitioning struct {
	Mode       H3PartitioningMode `json:"mode"`
	Resolution uint8              `json:"resolution,omitempty"`
}

func BaseCellPartitioning() H3Partitioning {
	return H3Partitioning{Mode: H3PartitionBaseCell}
}

func LowerResolutionPartitioning(resolution uint8) H3Partitioning {
	return H3Partitioning{Mode: H3PartitionLowerResolution, Resolution: resolution}
}

func (p H3Partitioning) Validate() error {
	switch p.Mode {
	case H3PartitionBaseCell:
		return nil
	case H3PartitionLowerResolution:
		if err := h3cell.ValidateResolution(p.Resolution); err != nil {
			return fmt.Errorf("partition resolution %d: %w", p.Resolution, err)
		}
		return nil
	}
	return fmt.Errorf("unknown h3 partitioning mode %q", p.Mode)
}

// Expression renders the partition expression over the h3index column.
func (p H3Partitioning) Expression() string {
	if p.Mode == H3PartitionLowerResolution {
		return fmt.Sprintf("if(h3GetResolution(%[1]s) > %[2]d, h3ToParent(%[1]s, %[2]d), %[1]s)", H3IndexName, p.Resolution)
	}
	return fmt.Sprintf("h3GetBaseCell(%s)", H3IndexName)
}

// TemporalPartitioning selects the granularity of the temporal partition expression.
type TemporalPartitioning string

const (
	TemporalPartitionMonth TemporalPartitioning = "month"
	TemporalPartitionYear  TemporalPartitioning = "year"
)

func (p TemporalPartitioning) Validate() error {
	switch p {
	case TemporalPartitionMonth, TemporalPartitionYear:
		return nil
	}
	return fmt.Errorf("unknown temporal partitioning %q", p)
}

// Expression renders the partition expression over column.
func (p TemporalPartitioning) Expression(column string) string {
	if p == TemporalPartitionYear {
		return fmt.Sprintf("toYear(%s)", column)
	}
	return fmt.Sprintf("toYYYYMM(%s)", column)
}
