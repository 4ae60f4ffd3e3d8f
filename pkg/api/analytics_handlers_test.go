package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/audit"
)

func TestEntityChangeSummaryEndpoint(t *testing.T) {
	st := &fakeStore{}
	for i := 0; i < 3; i++ {
		st.logs = append(st.logs, testLog("log-"+string(rune('a'+i)), testNow.Add(-time.Duration(i)*time.Hour)))
	}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/entity-summary?entity_id=order-1&entity_name=Order")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary analytics.EntityChangeSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "order-1", summary.EntityID)
	assert.Equal(t, 3, summary.TotalChanges)
	require.Len(t, summary.MostChangedProperties, 1)
	assert.Equal(t, "Status", summary.MostChangedProperties[0].PropertyName)
}

func TestEntityChangeSummaryEndpoint_RequiresEntityID(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/entity-summary?entity_name=Order")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEntityChangeSummaryEndpoint_DefaultsDateRange(t *testing.T) {
	st := &fakeStore{}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/entity-summary?entity_id=order-1&entity_name=Order")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, testNow.AddDate(0, 0, -7), st.lastAnalysisFilter.StartDate)
	assert.Equal(t, testNow, st.lastAnalysisFilter.EndDate)
}

func TestEntityChangeSummaryEndpoint_RejectsInvertedRange(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/entity-summary?entity_id=order-1&entity_name=Order&start_date=2026-08-10&end_date=2026-08-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserActivityAnalysisEndpoint(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{}}
	for i := 0; i < 4; i++ {
		st.logs = append(st.logs, testLog("log-"+string(rune('a'+i)), testNow.Add(-time.Hour)))
	}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/user-activity-analysis?min_activity_count=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis analytics.UserActivityAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, 4, analysis.TotalChangeCount)
	assert.Equal(t, 1, analysis.TotalActiveUsers)
	require.Len(t, analysis.MostActiveUsers, 1)
	assert.Equal(t, "alice", analysis.MostActiveUsers[0].UserID)
}

func TestUserActivityAnalysisEndpoint_RejectsBadMinCount(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/user-activity-analysis?min_activity_count=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMostModifiedEntitiesEndpoint(t *testing.T) {
	st := &fakeStore{}
	for i := 0; i < 2; i++ {
		st.logs = append(st.logs, testLog("log-"+string(rune('a'+i)), testNow.Add(-time.Hour)))
	}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/most-modified-entities")
	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.MostModifiedEntities
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "order-1", result.Entities[0].EntityID)
	assert.Equal(t, 2, result.Entities[0].ChangeCount)
	assert.Equal(t, 2, result.ChangesByEntityName["Order"])
}

func TestEntityChangesTrendEndpoint(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{testLog("log-1", testNow.Add(-time.Hour))}}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/entity-changes-trend?entity_name=Order&grouping=daily")
	require.Equal(t, http.StatusOK, rec.Code)

	var trend analytics.EntityChangesTrend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trend))
	assert.Equal(t, "Order", trend.EntityName)
	assert.Len(t, trend.ChangesByInterval, 8)
}

func TestEntityChangesTrendEndpoint_RejectsBadGrouping(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET",
		"/api/v1/audit-logs/entity-changes-trend?entity_name=Order&grouping=fortnightly")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserChangeBehaviorEndpoint(t *testing.T) {
	st := &fakeStore{logs: []*audit.Log{testLog("log-1", testNow.Add(-time.Hour))}}
	server := newTestServer(st)

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/user-change-behavior?user_id=alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var behavior analytics.UserChangeBehavior
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &behavior))
	assert.Equal(t, "alice", behavior.UserID)
	assert.Equal(t, 1, behavior.TotalChanges)
	assert.Len(t, behavior.ChangesByHourOfDay, 24)
}

func TestUserChangeBehaviorEndpoint_RequiresUserID(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rec := doRequest(t, server, "GET", "/api/v1/audit-logs/user-change-behavior")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
