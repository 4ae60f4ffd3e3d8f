package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/store"
)

var testNow = time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory store.Store that records the arguments it
// was called with
type fakeStore struct {
	logs []*audit.Log

	lastListFilter     store.ListFilter
	lastAnalysisFilter store.AnalysisFilter

	lastCutoff    time.Time
	lastBatchSize int
	lastArchive   bool
	deleteCount   int
	deleteErr     error
}

func (f *fakeStore) Insert(ctx context.Context, exec store.Execer, logs []*audit.Log) error {
	f.logs = append(f.logs, logs...)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*audit.Log, error) {
	for _, log := range f.logs {
		if log.ID == id {
			return log, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetPage(ctx context.Context, filter store.ListFilter) ([]*audit.Log, int, error) {
	f.lastListFilter = filter

	total := len(f.logs)
	start := (filter.Page - 1) * filter.PerPage
	if start >= total {
		return []*audit.Log{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return f.logs[start:end], total, nil
}

func (f *fakeStore) PropertyChangesFor(ctx context.Context, auditLogID string) ([]*audit.PropertyChange, error) {
	for _, log := range f.logs {
		if log.ID == auditLogID {
			return log.PropertyChanges, nil
		}
	}
	return []*audit.PropertyChange{}, nil
}

func (f *fakeStore) ListForAnalysis(ctx context.Context, filter store.AnalysisFilter) ([]*audit.Log, error) {
	f.lastAnalysisFilter = filter

	var matched []*audit.Log
	for _, log := range f.logs {
		if log.CreatedAt.Before(filter.StartDate) || log.CreatedAt.After(filter.EndDate) {
			continue
		}
		if filter.EntityID != "" && log.EntityID != filter.EntityID {
			continue
		}
		if filter.EntityName != "" && log.EntityName != filter.EntityName {
			continue
		}
		matched = append(matched, log)
	}
	return matched, nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int, archive bool) (int, error) {
	f.lastCutoff = cutoff
	f.lastBatchSize = batchSize
	f.lastArchive = archive
	return f.deleteCount, f.deleteErr
}

func newTestServer(st *fakeStore) *Server {
	svc := analytics.NewService(st, analytics.ServiceConfig{})
	return NewServer(st, svc, ServerConfig{Now: func() time.Time { return testNow }})
}

func strPtr(s string) *string { return &s }

func testLog(id string, createdAt time.Time) *audit.Log {
	return &audit.Log{
		ID:         id,
		EntityID:   "order-1",
		EntityName: "Order",
		State:      audit.StateModified,
		CreatedAt:  createdAt,
		CreatorID:  strPtr("alice"),
		PropertyChanges: []*audit.PropertyChange{
			{
				ID:            id + "-pc",
				AuditLogID:    id,
				PropertyName:  "Status",
				PropertyType:  "String",
				OriginalValue: strPtr("Pending"),
				NewValue:      strPtr("Shipped"),
			},
		},
	}
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestGetAuditLog(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{testLog("log-1", testNow.Add(-time.Hour))}}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/log-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var log audit.Log
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	assert.Equal(t, "log-1", log.ID)
	assert.Len(t, log.PropertyChanges, 1)
}

func TestGetAuditLog_NotFound(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAuditLogs(t *testing.T) {
	st := &fakeStore{}
	for i := 0; i < 30; i++ {
		st.logs = append(st.logs, testLog("log-"+string(rune('a'+i)), testNow.Add(-time.Hour)))
	}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs")
	require.Equal(t, http.StatusOK, rec.Code)

	var page PagedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, store.DefaultPerPage, page.PerPage)
	assert.Equal(t, 30, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, store.DefaultPerPage)
}

func TestListAuditLogs_PassesFilter(t *testing.T) {
	st := &fakeStore{}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs?entity_name=Order&state=modified&sort_by=entity_name&sort_order=asc&page=2&per_page=10")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Order", st.lastListFilter.EntityName)
	require.NotNil(t, st.lastListFilter.State)
	assert.Equal(t, audit.StateModified, *st.lastListFilter.State)
	assert.Equal(t, "entity_name", st.lastListFilter.SortBy)
	assert.Equal(t, store.SortAsc, st.lastListFilter.SortOrder)
	assert.Equal(t, 2, st.lastListFilter.Page)
	assert.Equal(t, 10, st.lastListFilter.PerPage)
}

func TestListAuditLogs_RejectsBadParams(t *testing.T) {
	server := newTestServer(&fakeStore{})

	for _, target := range []string{
		"/api/v1/audit-logs?per_page=0",
		"/api/v1/audit-logs?per_page=101",
		"/api/v1/audit-logs?page=0",
		"/api/v1/audit-logs?state=bogus",
		"/api/v1/audit-logs?start_date=not-a-date",
		"/api/v1/audit-logs?sort_by=password",
		"/api/v1/audit-logs?sort_order=sideways",
	} {
		rec := doRequest(t, server, "GET", target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetPropertyChanges(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{testLog("log-1", testNow.Add(-time.Hour))}}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/log-1/property-changes")
	require.Equal(t, http.StatusOK, rec.Code)

	var changes []*audit.PropertyChange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, "Status", changes[0].PropertyName)
}

func TestGetPropertyChanges_NotFound(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/missing/property-changes")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportAuditLogs(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{testLog("log-1", testNow.Add(-time.Hour))}}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-logs-20260814.csv")
	assert.Contains(t, rec.Body.String(), "Status")

	// The range defaults to the last seven days
	assert.Equal(t, testNow.AddDate(0, 0, -7), st.lastAnalysisFilter.StartDate)
	assert.Equal(t, testNow, st.lastAnalysisFilter.EndDate)
}

func TestExportAuditLogs_BadFormat(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupAuditLogs(t *testing.T) {
	st := &fakeStore{deleteCount: 42}
	server := newTestServer(st)

	rec := doRequest(t, server, "DELETE",
		"/api/v1/audit-logs/cleanup?older_than=2026-05-01&batch_size=250&archive=true")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CleanupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.DeletedCount)
	assert.True(t, resp.Archived)

	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), st.lastCutoff)
	assert.Equal(t, 250, st.lastBatchSize)
	assert.True(t, st.lastArchive)
}

func TestCleanupAuditLogs_RequiresCutoff(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "DELETE", "/api/v1/audit-logs/cleanup")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupAuditLogs_StoreFailure(t *testing.T) {
	st := &fakeStore{deleteCount: 7, deleteErr: context.DeadlineExceeded}
	server := newTestServer(st)

	rec := doRequest(t, server, "DELETE", "/api/v1/audit-logs/cleanup?older_than=2026-05-01")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/api/v1/audit-logs", nil)
	req.Header.Set("X-Request-ID", "req-123")
	echo := httptest.NewRecorder()
	server.ServeHTTP(echo, req)
	assert.Equal(t, "req-123", echo.Header().Get("X-Request-ID"))
}
