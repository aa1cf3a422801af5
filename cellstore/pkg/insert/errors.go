package insert

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput            = errors.New("no rows to insert")
	ErrResolutionTooHigh     = errors.New("resolution exceeds the maximum resolution of the schema")
	ErrMixedResolutions      = errors.New("cells of mixed resolutions require compaction to be enabled")
	ErrUnsupportedResolution = errors.New("resolution is not a base resolution of the schema")
	ErrUnknownColumn         = errors.New("column is not part of the schema")
)

// Stage is one step of the insert pipeline.
type Stage string

const (
	StageCompactAndSplit  Stage = "compact-and-split"
	StageCreateTempTables Stage = "create-temp-tables"
	StageStageRows        Stage = "stage-rows"
	StageAggregateUpward  Stage = "aggregate-upward"
	StagePromoteToFinal   Stage = "promote-to-final"
	StageDeduplicate      Stage = "deduplicate"
	StageDropTempTables   Stage = "drop-temp-tables"
)

// StageError reports the stage an insert failed in. Cancellation is reported as a StageError
// wrapping context.Canceled or context.DeadlineExceeded.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("insert failed in stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
