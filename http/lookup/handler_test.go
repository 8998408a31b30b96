package lookup_test

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/valk-sh/go-scorecache/apierror"
	"github.com/valk-sh/go-scorecache/http/lookup"
	"github.com/valk-sh/go-scorecache/scorecache"
)

func serve(h http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Add(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func requireAPIError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	require.Equal(t, status, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	err := apierror.DecodeError(rec.Body.Bytes())
	require.Error(t, err)
	require.Equal(t, status, apierror.StatusOf(err))
	if msg != "" {
		require.EqualError(t, err, msg)
	}
}

func TestGetScore(t *testing.T) {
	cache := scorecache.New()
	cache.Replace(map[uint64]uint64{115238234778370049: 177, 2: 0})
	h := lookup.New(cache, nil)

	rec := serve(h, http.MethodGet, "/scores/115238234778370049")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "115238234778370049", got["id"])
	require.Equal(t, float64(177), got["xp"])
	require.Equal(t, float64(1), got["level"])
	require.InDelta(t, 77.0/155.0*100, got["percentage"], 1e-9)

	rec = serve(h, http.MethodGet, "/scores/2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"level":0`)
}

func TestGetScoreErrors(t *testing.T) {
	cache := scorecache.New()
	cache.Replace(map[uint64]uint64{1: 500})
	h := lookup.New(cache, nil)

	requireAPIError(t, serve(h, http.MethodGet, "/scores/3"), http.StatusNotFound, lookup.ErrUnknownID.Error())
	requireAPIError(t, serve(h, http.MethodGet, "/scores/abc"), http.StatusBadRequest, "unable to parse ID")
	requireAPIError(t, serve(h, http.MethodGet, "/scores/-1"), http.StatusBadRequest, "unable to parse ID")
	requireAPIError(t, serve(h, http.MethodGet, "/scores/18446744073709551616"), http.StatusBadRequest, "unable to parse ID")
	requireAPIError(t, serve(h, http.MethodPost, "/scores/1"), http.StatusMethodNotAllowed, "")
	requireAPIError(t, serve(h, http.MethodGet, "/nowhere"), http.StatusNotFound, "")
}

func TestListScoresJSON(t *testing.T) {
	cache := scorecache.New()
	h := lookup.New(cache, nil)

	rec := serve(h, http.MethodGet, "/scores")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	cache.Replace(map[uint64]uint64{1: 500, 2: 10})
	rec = serve(h, http.MethodGet, "/scores", "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var lines []struct {
		ID string `json:"id"`
		XP uint64 `json:"xp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	require.Len(t, lines, 2)
	require.Equal(t, "1", lines[0].ID)
	require.Equal(t, uint64(500), lines[0].XP)
	require.Equal(t, "2", lines[1].ID)
	require.Equal(t, uint64(10), lines[1].XP)
}

func TestListScoresNDJSON(t *testing.T) {
	cache := scorecache.New()
	cache.Replace(map[uint64]uint64{1: 500, 2: 10, 3: 7})
	h := lookup.New(cache, nil)

	rec := serve(h, http.MethodGet, "/scores", "Accept", "application/x-ndjson")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	got := make(map[string]uint64)
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		var line struct {
			ID string `json:"id"`
			XP uint64 `json:"xp"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		got[line.ID] = line.XP
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, map[string]uint64{"1": 500, "2": 10, "3": 7}, got)
}

func TestListScoresBadAccept(t *testing.T) {
	h := lookup.New(scorecache.New(), nil)
	requireAPIError(t, serve(h, http.MethodGet, "/scores", "Accept", "text/html"), http.StatusBadRequest, "")
	requireAPIError(t, serve(h, http.MethodGet, "/scores", "Accept", "not a media type;;"), http.StatusBadRequest,
		"invalid Accept header")
}

func TestReady(t *testing.T) {
	cache := scorecache.New()
	h := lookup.New(cache, nil)

	requireAPIError(t, serve(h, http.MethodGet, "/ready"), http.StatusServiceUnavailable, lookup.ErrNotReady.Error())

	// An empty snapshot still counts as loaded.
	cache.Replace(nil)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ready").Code)
}

func TestStatus(t *testing.T) {
	var fail bool
	src := scorecache.SourceFunc(func(ctx context.Context) ([]scorecache.ScoreRecord, error) {
		if fail {
			return nil, errors.New("archive unreachable")
		}
		return []scorecache.ScoreRecord{{ID: 1, Value: 500}}, nil
	})
	cache := scorecache.New()
	r, err := scorecache.NewRefresher(cache, src)
	require.NoError(t, err)
	h := lookup.New(cache, r)

	var st map[string]any
	rec := serve(h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, float64(0), st["scores"])
	require.Equal(t, "idle", st["state"])
	require.NotContains(t, st, "updatedAt")
	require.NotContains(t, st, "lastSuccess")

	require.NoError(t, r.Refresh(context.Background()))
	fail = true
	require.Error(t, r.Refresh(context.Background()))

	rec = serve(h, http.MethodGet, "/status")
	st = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, float64(1), st["scores"])
	require.Equal(t, float64(1), st["successes"])
	require.Equal(t, float64(1), st["failures"])
	require.Contains(t, st["lastError"], "archive unreachable")
	require.Contains(t, st, "updatedAt")
	require.Contains(t, st, "lastSuccess")

	// Lookups are still answered from the last good snapshot.
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/scores/1").Code)
}
