package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCellstore_Logger_ParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatText, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	require.EqualError(t, err, `unknown log format "xml"`)
}

func TestCellstore_Logger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, Options{Format: FormatJSON})
	log.Debug("hidden")
	log.Info("inserted", "tableset", "water", "empty", "")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "inserted", entry["msg"])
	require.Equal(t, "water", entry["tableset"])
	require.NotContains(t, entry, "empty")
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, entry["time"])

	buf.Reset()
	New(&buf, Options{Format: FormatJSON, Verbose: true}).Debug("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestCellstore_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 14, 3, 4, 56_789_000, time.FixedZone("CEST", 2*60*60))
	require.Equal(t, "2024-05-01T12:03:04.056Z", formatRFC3339Millis(ts))
}
