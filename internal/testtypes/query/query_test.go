package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"benchmark-verifier/internal/request"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/testutil"
	"benchmark-verifier/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	ID           int `json:"id"`
	RandomNumber int `json:"randomNumber"`
}

// worldServer emulates a queries endpoint. clamp controls whether it honours the
// [1, 500] contract; onRequest observes the count it served.
type worldServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
}

func newWorldServer(t *testing.T, clamp bool, onRequest func(n int)) *worldServer {
	ws := &worldServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("count")
		ws.mu.Lock()
		ws.requests = append(ws.requests, raw)
		ws.mu.Unlock()

		n := 1
		if clamp {
			n = verification.TranslateQueryCount(raw, 1, 500)
		} else if v, err := strconv.Atoi(raw); err == nil {
			n = v
		}
		if onRequest != nil {
			onRequest(n)
		}

		items := make([]world, n)
		for i := range items {
			items[i] = world{ID: i + 1, RandomNumber: i + 1}
		}
		w.Header().Set("Server", "test")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *worldServer) seen() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]string(nil), ws.requests...)
}

func newBase(db *testutil.FakeDatabase, levels []int) testtypes.Base {
	b := testtypes.NewBase(levels, db, request.NewClient(2*time.Second))
	b.Settings.Parallelism = 4
	return b
}

func probeFindings(m *verification.Messages) []verification.Finding {
	var out []verification.Finding
	for _, f := range m.Findings() {
		if strings.Contains(f.Description, "Probe ") {
			out = append(out, f)
		}
	}
	return out
}

func TestCachedQuery_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/cached-worlds?count="
	server.Close()

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8})}
	m, err := exec.Verify(context.Background(), url)
	require.NoError(t, err)

	require.Len(t, m.Findings(), 1)
	assert.Equal(t, verification.SeverityError, m.Findings()[0].Severity)
	assert.Empty(t, probeFindings(m))
	assert.False(t, m.Passed())
}

func TestCachedQuery_ConformingEndpoint(t *testing.T) {
	ws := newWorldServer(t, true, nil)
	url := ws.URL + "/cached-worlds?count="

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8, 16})}
	m, err := exec.Verify(context.Background(), url)
	require.NoError(t, err)

	assert.True(t, m.Passed(), "%+v", m.Findings())
	probes := probeFindings(m)
	require.Len(t, probes, len(Probes))
	assert.Contains(t, probes[0].Description, `Probe "2" returned 2 objects`)
	assert.Contains(t, probes[1].Description, `Probe "0" returned 1 objects`)
	assert.Contains(t, probes[3].Description, `Probe "501" returned 500 objects`)
	assert.NotEmpty(t, m.Body())
	assert.Equal(t, "test", m.Headers().Get("Server"))
}

func TestCachedQuery_ProbesInOrder(t *testing.T) {
	ws := newWorldServer(t, true, nil)

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8})}
	_, err := exec.Verify(context.Background(), ws.URL+"/cached-worlds?count=")
	require.NoError(t, err)

	// The header probe requests the bare URL first.
	assert.Equal(t, []string{"", "2", "0", "foo", "501", ""}, ws.seen())
}

func TestCachedQuery_UnclampedEndpointFails(t *testing.T) {
	ws := newWorldServer(t, false, nil)

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8})}
	m, err := exec.Verify(context.Background(), ws.URL+"/cached-worlds?count=")
	require.NoError(t, err)

	probes := probeFindings(m)
	require.Len(t, probes, len(Probes))
	assert.Equal(t, verification.SeverityInfo, probes[0].Severity)
	assert.Equal(t, verification.SeverityError, probes[1].Severity, "probe 0 must be clamped to 1")
	assert.Contains(t, probes[1].Description, `"0"`)
	assert.Equal(t, verification.SeverityInfo, probes[2].Severity)
	assert.Equal(t, verification.SeverityError, probes[3].Severity, "probe 501 must be clamped to 500")
	assert.Equal(t, verification.SeverityInfo, probes[4].Severity)
}

func TestCachedQuery_NonNumericProbesShareDefault(t *testing.T) {
	ws := newWorldServer(t, true, nil)

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8})}
	m, err := exec.Verify(context.Background(), ws.URL+"/cached-worlds?count=")
	require.NoError(t, err)

	probes := probeFindings(m)
	require.Len(t, probes, len(Probes))
	assert.Equal(t, `Probe "foo" returned 1 objects`, probes[2].Description)
	assert.Equal(t, `Probe "" returned 1 objects`, probes[4].Description)
}

func TestCachedQuery_FailedProbeDoesNotAbortSweep(t *testing.T) {
	var served []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("count")
		mu.Lock()
		served = append(served, raw)
		mu.Unlock()
		if raw == "foo" {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		n := verification.TranslateQueryCount(raw, 1, 500)
		items := make([]world, n)
		w.Header().Set("Server", "test")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}))
	defer server.Close()

	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{8})}
	m, err := exec.Verify(context.Background(), server.URL+"/cached-worlds?count=")
	require.NoError(t, err)

	assert.Len(t, probeFindings(m), len(Probes)-1)
	assert.Equal(t, 1, m.Count(verification.SeverityError))
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, served, "501")
}

func TestCachedQuery_EmptyConcurrencyLevels(t *testing.T) {
	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), nil)}

	_, err := exec.Verify(context.Background(), "http://127.0.0.1:1/q?count=")
	assert.True(t, verification.IsConfigurationError(err))

	_, err = exec.RetrieveBenchmarkCommands("http://127.0.0.1:1/q?count=")
	assert.True(t, verification.IsConfigurationError(err))
}

func TestCachedQuery_RetrieveBenchmarkCommands(t *testing.T) {
	exec := &CachedQuery{Base: newBase(testutil.NewFakeDatabase(10), []int{16, 32, 64, 128, 256, 512})}

	cmds, err := exec.RetrieveBenchmarkCommands("http://tfb-server:8080/cached-worlds?count=")
	require.NoError(t, err)
	assert.Len(t, cmds.All(), 8)
	assert.Contains(t, strings.Join(cmds.WarmupCommand, " "), "-c 512")
	assert.Contains(t, strings.Join(cmds.PrimerCommand, " "), "-d 5 -c 8")
}

func TestCachedQuery_WaitsOnDatabase(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	db.Unavailable = true
	exec := &CachedQuery{Base: newBase(db, []int{8})}

	m := verification.NewMessages("db")
	assert.Error(t, exec.WaitForDatabaseToBeAvailable(context.Background(), m))
	assert.Equal(t, 1, m.Count(verification.SeverityError))
}

func TestQuery_ReconcilesCounters(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	ws := newWorldServer(t, true, db.Select)

	exec := &Query{Base: newBase(db, []int{2, 4})}
	m, err := exec.Verify(context.Background(), ws.URL+"/queries?count=")
	require.NoError(t, err)

	assert.True(t, m.Passed(), "%+v", m.Findings())
	var captions []string
	for _, f := range m.Findings() {
		if strings.HasPrefix(f.Description, "Executed queries") || strings.HasPrefix(f.Description, "Rows read") {
			captions = append(captions, f.Description)
		}
	}
	// 2 repetitions x 4 connections x 20 queries.
	assert.Equal(t, []string{"Executed queries: 160/160", "Rows read: 160/160"}, captions)
}

func TestQuery_EndpointThatSkipsTheDatabase(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	ws := newWorldServer(t, true, nil)

	exec := &Query{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/queries?count=")
	require.NoError(t, err)

	assert.Equal(t, 2, m.Count(verification.SeverityError))
	assert.Len(t, probeFindings(m), len(Probes))
}

func TestQuery_ExcessiveQueriesWarn(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	ws := newWorldServer(t, true, func(n int) { db.Select(n * 2) })

	exec := &Query{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/queries?count=")
	require.NoError(t, err)

	assert.True(t, m.Passed())
	assert.Equal(t, 2, m.Count(verification.SeverityWarning))
}

func TestQuery_UnreachableSkipsReconciliation(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/queries?count="
	server.Close()

	exec := &Query{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), url)
	require.NoError(t, err)
	assert.Len(t, m.Findings(), 1)
}

func descriptions(m *verification.Messages) []string {
	var out []string
	for _, f := range m.Findings() {
		out = append(out, f.Description)
	}
	return out
}

func TestUpdate_VerifiesUpdatedRows(t *testing.T) {
	db := testutil.NewFakeDatabase(100)
	ws := newWorldServer(t, true, func(n int) {
		db.Select(n)
		db.Update(n)
	})

	exec := &Update{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/updates?count=")
	require.NoError(t, err)

	assert.True(t, m.Passed(), "%+v", m.Findings())
	d := descriptions(m)
	// 2 repetitions x 2 connections x 20 rows, each selected and updated.
	assert.Contains(t, d, "Executed queries: 160/160")
	assert.Contains(t, d, "Rows read: 80/80")
	assert.Contains(t, d, "Rows updated: 80/80")
	assert.Equal(t, "20 rows in the world table changed", d[len(d)-1])
}

func TestUpdate_EndpointThatNeverUpdates(t *testing.T) {
	db := testutil.NewFakeDatabase(100)
	ws := newWorldServer(t, true, db.Select)

	exec := &Update{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/updates?count=")
	require.NoError(t, err)

	titles := map[string]bool{}
	for _, f := range m.Findings() {
		if f.Severity == verification.SeverityError {
			titles[f.Title] = true
		}
	}
	assert.True(t, titles["Insufficient count"])
	assert.True(t, titles["No rows updated"])
}

func TestUpdate_DatabaseUnavailable(t *testing.T) {
	db := testutil.NewFakeDatabase(100)
	ws := newWorldServer(t, true, nil)
	db.Unavailable = true

	exec := &Update{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/updates?count=")
	require.NoError(t, err)

	assert.False(t, m.Passed())
	assert.Contains(t, descriptions(m), "Unable to read the world table (0 rows before, 0 rows after)")
}

func TestVerifyWorldChanged(t *testing.T) {
	m := verification.NewMessages("u")
	verifyWorldChanged(map[int32]int32{1: 1, 2: 2}, map[int32]int32{1: 1, 2: 3}, m)
	assert.Equal(t, []string{"1 rows in the world table changed"}, descriptions(m))

	m = verification.NewMessages("u")
	verifyWorldChanged(map[int32]int32{1: 1}, map[int32]int32{1: 1}, m)
	assert.False(t, m.Passed())
}

func TestDelta_Anomaly(t *testing.T) {
	m := verification.NewMessages("u")
	assert.Equal(t, uint64(0), delta("Query", 10, 4, m))
	assert.Equal(t, 1, m.Count(verification.SeverityWarning))
	assert.Equal(t, uint64(6), delta("Query", 4, 10, m))
}

// anomalousDatabase fails its first rows-selected read the way a counter subtraction
// underflow does.
type anomalousDatabase struct {
	*testutil.FakeDatabase
	calls atomic.Int32
}

func (a *anomalousDatabase) GetCountOfRowsSelectedForTable(ctx context.Context, table string, expectedRowsPerQuery uint64) (uint64, error) {
	if a.calls.Add(1) == 1 {
		return 0, fmt.Errorf("%w: subtracting 100005 from 100000", verification.ErrMeasurementAnomaly)
	}
	return a.FakeDatabase.GetCountOfRowsSelectedForTable(ctx, table, expectedRowsPerQuery)
}

func TestQuery_MeasurementAnomalySkipsCounter(t *testing.T) {
	fake := testutil.NewFakeDatabase(10)
	fake.Select(100000)
	ws := newWorldServer(t, true, fake.Select)

	db := &anomalousDatabase{FakeDatabase: fake}
	b := testtypes.NewBase([]int{2}, db, request.NewClient(2*time.Second))
	exec := &Query{Base: b}
	m, err := exec.Verify(context.Background(), ws.URL+"/queries?count=")
	require.NoError(t, err)

	var anomalies []verification.Finding
	for _, f := range m.Findings() {
		if f.Title == "Measurement anomaly" {
			anomalies = append(anomalies, f)
			continue
		}
		assert.NotContains(t, f.Description, "rows read", "the anomalous counter must not be compared")
		assert.NotContains(t, f.Description, "Rows read")
	}
	require.Len(t, anomalies, 1)
	assert.Equal(t, verification.SeverityWarning, anomalies[0].Severity)
	assert.Contains(t, anomalies[0].Description, "rows read")
	assert.Contains(t, descriptions(m), "Executed queries: 80/80")
	assert.True(t, m.Passed(), "%+v", m.Findings())
}

func TestQuery_UnreadableCountersRecordOneError(t *testing.T) {
	db := testutil.NewFakeDatabase(10)
	db.Unavailable = true
	ws := newWorldServer(t, true, nil)

	exec := &Query{Base: newBase(db, []int{2})}
	m, err := exec.Verify(context.Background(), ws.URL+"/queries?count=")
	require.NoError(t, err)

	require.Equal(t, 1, m.Count(verification.SeverityError), "%+v", m.Findings())
	for _, f := range m.Findings() {
		if f.Severity == verification.SeverityError {
			assert.Equal(t, "Counters unavailable", f.Title)
		}
		assert.NotEqual(t, "Insufficient count", f.Title)
	}
}
