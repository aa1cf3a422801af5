package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/catalog"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
	cellstoretesting "github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/testing"
)

type fakeCatalog struct {
	sets    map[string]*tableset.TableSet
	schemas map[string]*schema.CompactedTableSchema
	err     error
}

func (c *fakeCatalog) TableSets(context.Context) (map[string]*tableset.TableSet, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.sets, nil
}

func (c *fakeCatalog) GetSchema(_ context.Context, name string) (*schema.CompactedTableSchema, error) {
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrSchemaNotFound, name)
	}
	return s, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, cat Catalog, db Pinger) http.Handler {
	t.Helper()
	srv, err := New(Config{
		Logger:      cellstoretesting.NewLogger(),
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: VersionInfo{Version: "1.2.3", Commit: "abc", Date: "2026-01-01"},
		Catalog:     cat,
		DB:          db,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func waterCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	s, err := schema.NewBuilder("water").
		BaseResolutions(4, 6, 8).
		AddH3IndexColumn().
		AddColumn("value", schema.Simple(schema.UInt8).OrderKey(1)).
		Build()
	require.NoError(t, err)

	ts := tableset.New("water")
	for _, r := range []uint8{4, 6, 8} {
		ts.Add(tableset.TableSpec{H3Resolution: r, HasBaseSuffix: true})
	}
	ts.Add(tableset.TableSpec{H3Resolution: 7, IsCompacted: true})
	ts.Columns["h3index"] = "UInt64"
	ts.Columns["value"] = "UInt8"

	return &fakeCatalog{
		sets:    map[string]*tableset.TableSet{"water": ts, "elevation": tableset.New("elevation")},
		schemas: map[string]*schema.CompactedTableSchema{"water": s},
	}
}

func TestCellstore_Server_Health(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, waterCatalog(t), fakePinger{})
	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok\n", rec.Body.String())

	rec = get(t, h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, waterCatalog(t), fakePinger{err: errors.New("connection refused")})
	rec = get(t, down, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, h, "/version")
	require.Equal(t, http.StatusOK, rec.Code)
	var version VersionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	require.Equal(t, "1.2.3", version.Version)

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCellstore_Server_TableSets(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, waterCatalog(t), fakePinger{})

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		rec := get(t, h, "/api/tablesets")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var out []TableSetResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out, 2)
		require.Equal(t, "elevation", out[0].Name)
		require.Equal(t, "water", out[1].Name)
		require.Equal(t, []int{4, 6, 8}, out[1].BaseResolutions)
		require.Equal(t, []int{7}, out[1].CompactedResolutions)
		require.Equal(t, "UInt8", out[1].Columns["value"])
	})

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		rec := get(t, h, "/api/tablesets/water")
		require.Equal(t, http.StatusOK, rec.Code)
		var out TableSetResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Equal(t, "water", out.Name)

		rec = get(t, h, "/api/tablesets/missing")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("catalog failure", func(t *testing.T) {
		t.Parallel()
		broken := newTestServer(t, &fakeCatalog{err: errors.New("boom")}, fakePinger{})
		rec := get(t, broken, "/api/tablesets")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestCellstore_Server_Schema(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, waterCatalog(t), fakePinger{})

	rec := get(t, h, "/api/schemas/water")
	require.Equal(t, http.StatusOK, rec.Code)
	var got schema.CompactedTableSchema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "water", got.Name())
	require.Equal(t, uint8(8), got.MaxResolution())

	rec = get(t, h, "/api/schemas/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "schema missing not found", body["error"])
}

func TestCellstore_Server_Config(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.EqualError(t, err, "logger is required")

	_, err = New(Config{Logger: cellstoretesting.NewLogger(), ListenAddr: ":0"})
	require.EqualError(t, err, "catalog is required")
}
