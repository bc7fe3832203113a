package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/dashboard"
	"github.com/fairlabs/stms-dashboard/internal/downloads"
	"github.com/fairlabs/stms-dashboard/internal/history"
	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
	"github.com/fairlabs/stms-dashboard/internal/remote"
	"github.com/fairlabs/stms-dashboard/internal/render"
)

type fakeRemote struct {
	calls     int
	searchErr error
}

func (f *fakeRemote) Search(_ context.Context, _ models.SearchRequest) (*models.SearchResponse, error) {
	f.calls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &models.SearchResponse{
		StatusCode: 200,
		Summaries:  map[string]string{"0": "Anodes", "1": "Cathodes"},
		Articles:   map[string][]string{"0": {"first"}, "1": {"second"}},
		Filepath:   "s3://fairlabs-shared/results/run.csv",
	}, nil
}

func (f *fakeRemote) Report(_ context.Context, _ models.ReportRequest) (*models.ReportResponse, error) {
	f.calls++
	return &models.ReportResponse{Reports: []string{"zero", "one"}}, nil
}

type fakeTables struct{}

func (fakeTables) FetchTable(_ context.Context, _ string) (*models.ResultTable, error) {
	return &models.ResultTable{Articles: []models.Article{
		{Cluster: "0", Topic: "Anodes", Title: "first", Summary: "body, with comma", Author: "kim", PublishedDate: "2024-03-01", X: 1, Y: 2, Similarity: 0.8, KMeansCluster: "0"},
		{Cluster: "1", Topic: "Cathodes", Title: "second", Summary: "plain", Author: "lee", PublishedDate: "2024-03-02", X: 3, Y: 4, Similarity: 0.7, KMeansCluster: "1"},
	}}, nil
}

type fakeHistory struct {
	query  history.Query
	err    error
	result *history.Result
}

func (f *fakeHistory) Recent(_ context.Context, q history.Query) (*history.Result, error) {
	f.query = q
	return f.result, f.err
}

func (f *fakeHistory) Health(_ context.Context) error {
	return f.err
}

func newTestServer(t *testing.T, fr *fakeRemote, hist historyReader) *httptest.Server {
	t.Helper()

	cfg := &config.Server{HistoryPage: 20, HistoryMaxPage: 100, AllowedOrigins: []string{"*"}}
	store := downloads.NewMemory(8, time.Minute)
	log := logger.Discard()
	dash := dashboard.New(fr, fakeTables{}, store, nil, log)

	srv, err := newServer(log, cfg, dash, store, hist)
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func searchForm() url.Values {
	return url.Values{
		"keyword_query":     {"battery"},
		"semantic_query":    {"solid state electrolyte"},
		"start_date":        {"2024-03-01"},
		"end_date":          {"2024-03-31"},
		"search_similarity": {"0.5"},
		"cluster_min_size":  {"3"},
		"cluster_top_n":     {"5"},
		"use_body":          {"on"},
	}
}

func TestIndexShowsDefaults(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "STMS")
	require.Contains(t, buf.String(), `value="2024-05-01"`)
	require.NotContains(t, buf.String(), `id="results"`)
}

func TestFormSearchSkipsRemoteWhenInputMissing(t *testing.T) {
	fr := &fakeRemote{}
	ts := newTestServer(t, fr, nil)

	form := searchForm()
	form.Set("semantic_query", "")
	resp, err := http.PostForm(ts.URL+"/search", form)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, fr.calls)
}

func TestFormSearchRendersResults(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.PostForm(ts.URL+"/search", searchForm())
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	page := buf.String()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, page, "Cluster 0 Topic: Anodes")
	require.Contains(t, page, `id="results"`)
	require.Contains(t, page, `href="/downloads/`)
	require.Contains(t, page, "vegaEmbed")
}

func TestFormSearchRejectsMalformedDate(t *testing.T) {
	fr := &fakeRemote{}
	ts := newTestServer(t, fr, nil)

	form := searchForm()
	form.Set("start_date", "03/01/2024")
	resp, err := http.PostForm(ts.URL+"/search", form)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, fr.calls)
}

func postJSON(t *testing.T, ts *httptest.Server, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func apiForm() map[string]any {
	return map[string]any{
		"keyword_query":   "battery",
		"semantic_query":  "solid state electrolyte",
		"start_date":      "2024-03-01",
		"end_date":        "2024-03-31",
		"generate_report": true,
	}
}

func TestAPISearchAndDownload(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, out := postJSON(t, ts, apiForm())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(dashboard.StageRenderedWithReports), out["stage"])

	table := out["table"].(map[string]any)
	require.Equal(t, []any{"cluster", "topic", "title", "body", "author", "published_date"}, table["columns"])
	require.Len(t, out["reports"], 2)

	id, ok := out["download_id"].(string)
	require.True(t, ok)

	dl, err := http.Get(ts.URL + "/downloads/" + id)
	require.NoError(t, err)
	defer dl.Body.Close()

	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Equal(t, render.DownloadContentType, dl.Header.Get("Content-Type"))
	require.Contains(t, dl.Header.Get("Content-Disposition"), render.DownloadFileName)

	records, err := csv.NewReader(dl.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, render.TableColumns, records[0])
	require.Equal(t, []string{"0", "Anodes", "first", "body, with comma", "kim", "2024-03-01"}, records[1])
}

func TestAPISearchUnsuccessfulStatus(t *testing.T) {
	fr := &fakeRemote{searchErr: fmt.Errorf("search: %w", remote.ErrUnsuccessfulStatus)}
	ts := newTestServer(t, fr, nil)

	resp, out := postJSON(t, ts, apiForm())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, dashboard.MsgNoResults, out["error"])
	require.Equal(t, string(dashboard.StageIdle), out["stage"])
	require.NotContains(t, out, "table")
	require.NotContains(t, out, "download_id")
}

func TestAPISearchBadBody(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadMissing(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.Get(ts.URL + "/downloads/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryNotConfigured(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryClampsPaging(t *testing.T) {
	hist := &fakeHistory{result: &history.Result{Total: 1}}
	ts := newTestServer(t, &fakeRemote{}, hist)

	resp, err := http.Get(ts.URL + "/api/history?q=battery&outcome=failed&size=500&from=-3&start=2024-01-01T00:00:00Z")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "battery", hist.query.Text)
	require.Equal(t, "failed", hist.query.Outcome)
	require.Equal(t, 100, hist.query.Size)
	require.Zero(t, hist.query.From)
	require.NotNil(t, hist.query.Start)
	require.Nil(t, hist.query.End)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeRemote{}, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	unhealthy := newTestServer(t, &fakeRemote{}, &fakeHistory{err: errors.New("cluster red")})
	resp, err = http.Get(unhealthy.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 20},
		{"garbage", "abc", 20},
		{"negative", "-1", 20},
		{"in range", "42", 42},
		{"over max", "1000", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, clampInt(tt.raw, 20, 100))
		})
	}
}
