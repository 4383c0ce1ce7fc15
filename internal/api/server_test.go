package api_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/api"
	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/testutil"
)

func TestHealthAndVersion(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	rr := doJSON(t, router, "GET", "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = doJSON(t, router, "GET", "/api/version", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"version":"test"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	dest, err := app.Store().CreateCollection(t.Context(), "Liked")
	require.NoError(t, err)
	ids := testutil.SeedCompanies(t, app.Store(), 3)
	rr := doJSON(t, router, "POST", "/api/collections/"+dest.ID+"/add", models.BulkAddRequest{CompanyIDs: ids}, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp models.BulkAddResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	waitForJob(t, router, resp.JobID)

	rr = doJSON(t, router, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "collections_jobs_submitted_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestClientVersionGate(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Server.MinClientVersion = ">= 1.2.0"
	app := testutil.SetupTestApp(t, cfg)
	router := api.NewServer(app).Router()

	testCases := []struct {
		name    string
		version string
		status  int
	}{
		{"No header", "", http.StatusOK},
		{"Supported", "1.4.0", http.StatusOK},
		{"Too old", "1.1.9", http.StatusUpgradeRequired},
		{"Garbage", "not-a-version", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.version != "" {
				headers[api.ClientVersionHeader] = tc.version
			}
			rr := doJSON(t, router, "GET", "/api/collections", nil, headers)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

// readEvents collects SSE data payloads until the server ends the stream.
func readEvents(t *testing.T, url string) ([]models.ProgressUpdate, int) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	var updates []models.ProgressUpdate
	keepalives := 0
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			var u models.ProgressUpdate
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &u))
			updates = append(updates, u)
		case strings.HasPrefix(line, ": keepalive"):
			keepalives++
		}
	}
	return updates, keepalives
}

func TestJobStream(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Jobs.BatchSize = 1
	cfg.Jobs.BatchDelay = 30 * time.Millisecond
	app := testutil.SetupTestApp(t, cfg)
	router := api.NewServer(app).Router()
	ts := httptest.NewServer(router)
	defer ts.Close()

	dest, err := app.Store().CreateCollection(t.Context(), "Liked")
	require.NoError(t, err)
	ids := testutil.SeedCompanies(t, app.Store(), 5)

	rr := doJSON(t, router, "POST", "/api/collections/"+dest.ID+"/add", models.BulkAddRequest{CompanyIDs: ids}, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp models.BulkAddResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	t.Run("Streams until terminal", func(t *testing.T) {
		updates, _ := readEvents(t, ts.URL+"/api/jobs/"+resp.JobID+"/stream")
		require.NotEmpty(t, updates)
		last := updates[len(updates)-1]
		assert.Equal(t, models.JobCompleted, last.State)
		assert.Equal(t, 5, last.Done)
		assert.Equal(t, float64(100), last.Progress)
		for i := 1; i < len(updates); i++ {
			assert.GreaterOrEqual(t, updates[i].Done, updates[i-1].Done)
		}
	})

	t.Run("Finished job sends one snapshot", func(t *testing.T) {
		updates, _ := readEvents(t, ts.URL+"/api/jobs/"+resp.JobID+"/stream")
		require.Len(t, updates, 1)
		assert.Equal(t, models.JobCompleted, updates[0].State)
	})

	t.Run("Unknown job", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/api/jobs/missing/stream")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestJobWebsocket(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	dest, err := app.Store().CreateCollection(t.Context(), "Liked")
	require.NoError(t, err)
	ids := testutil.SeedCompanies(t, app.Store(), 4)

	// The admin feed sees every job's updates.
	admin, _, err := gws.DefaultDialer.Dial(wsURL+"/ws/admin/progress", nil)
	require.NoError(t, err)
	defer admin.Close()
	// Give the hub a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	acc, err := app.Engine().Submit(t.Context(), dest.ID, models.BulkAddRequest{CompanyIDs: ids}, "")
	require.NoError(t, err)

	admin.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var u models.ProgressUpdate
		require.NoError(t, admin.ReadJSON(&u))
		assert.Equal(t, acc.Job.ID, u.JobID)
		if u.IsTerminal() {
			assert.Equal(t, models.JobCompleted, u.State)
			break
		}
	}

	conn, _, err := gws.DefaultDialer.Dial(wsURL+"/ws/jobs/"+acc.Job.ID, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var u models.ProgressUpdate
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, models.JobCompleted, u.State)
	assert.Equal(t, 4, u.Done)

	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "expected a normal close, got %v", err)
}
