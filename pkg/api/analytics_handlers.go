package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/observability"
)

// AnalyticsHandlers serves the aggregate report endpoints
type AnalyticsHandlers struct {
	service *analytics.Service
	logger  *observability.Logger
	now     func() time.Time
}

// NewAnalyticsHandlers creates handlers over the given analytics service
func NewAnalyticsHandlers(service *analytics.Service, logger *observability.Logger, now func() time.Time) *AnalyticsHandlers {
	if now == nil {
		now = time.Now
	}
	return &AnalyticsHandlers{
		service: service,
		logger:  logger,
		now:     now,
	}
}

// RegisterRoutes registers analytics routes with the router
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/audit-logs/entity-summary", h.EntityChangeSummary).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/user-activity-analysis", h.UserActivityAnalysis).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/most-modified-entities", h.MostModifiedEntities).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/entity-changes-trend", h.EntityChangesTrend).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/user-change-behavior", h.UserChangeBehavior).Methods("GET")
}

// EntityChangeSummary summarizes one entity's change history
func (h *AnalyticsHandlers) EntityChangeSummary(w http.ResponseWriter, r *http.Request) {
	dateRange, err := dateRangeFromRequest(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	summary, err := h.service.EntityChangeSummary(r.Context(), analytics.EntityChangeSummaryRequest{
		EntityID:   query.Get("entity_id"),
		EntityName: query.Get("entity_name"),
		Range:      dateRange,
	})
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// UserActivityAnalysis summarizes who changed what within the range
func (h *AnalyticsHandlers) UserActivityAnalysis(w http.ResponseWriter, r *http.Request) {
	dateRange, err := dateRangeFromRequest(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := analytics.UserActivityAnalysisRequest{
		Range:      dateRange,
		UserID:     r.URL.Query().Get("user_id"),
		EntityName: r.URL.Query().Get("entity_name"),
	}
	if r.URL.Query().Get("min_activity_count") != "" {
		min, err := parseIntParam(r, "min_activity_count", 0, 0, 1<<30)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.MinActivityCount = &min
	}

	analysis, err := h.service.UserActivityAnalysis(r.Context(), req)
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// MostModifiedEntities ranks entities by change volume within the range
func (h *AnalyticsHandlers) MostModifiedEntities(w http.ResponseWriter, r *http.Request) {
	dateRange, err := dateRangeFromRequest(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.MostModifiedEntities(r.Context(), analytics.MostModifiedEntitiesRequest{
		Range:       dateRange,
		EntityNames: splitListParam(r.URL.Query().Get("entity_names")),
		UserID:      r.URL.Query().Get("user_id"),
	})
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// EntityChangesTrend builds dense time series of one entity type's
// changes
func (h *AnalyticsHandlers) EntityChangesTrend(w http.ResponseWriter, r *http.Request) {
	dateRange, err := dateRangeFromRequest(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	grouping, err := analytics.ParseTimeGrouping(r.URL.Query().Get("grouping"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	trend, err := h.service.EntityChangesTrend(r.Context(), analytics.EntityChangesTrendRequest{
		EntityName:    r.URL.Query().Get("entity_name"),
		Range:         dateRange,
		Grouping:      grouping,
		PropertyNames: splitListParam(r.URL.Query().Get("property_names")),
	})
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trend)
}

// UserChangeBehavior describes one user's change patterns
func (h *AnalyticsHandlers) UserChangeBehavior(w http.ResponseWriter, r *http.Request) {
	dateRange, err := dateRangeFromRequest(r, h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	states, err := parseStatesParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	behavior, err := h.service.UserChangeBehavior(r.Context(), analytics.UserChangeBehaviorRequest{
		UserID:      r.URL.Query().Get("user_id"),
		Range:       dateRange,
		EntityNames: splitListParam(r.URL.Query().Get("entity_names")),
		States:      states,
	})
	if err != nil {
		h.writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, behavior)
}

// writeReportError maps request validation failures to 400 and
// everything else to 500
func (h *AnalyticsHandlers) writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidDateRange),
		errors.Is(err, analytics.ErrMissingEntityID),
		errors.Is(err, analytics.ErrMissingEntityName),
		errors.Is(err, analytics.ErrMissingUserID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		if h.logger != nil {
			h.logger.WithError(err).Error("analytics report failed")
		}
		http.Error(w, "failed to compute report", http.StatusInternalServerError)
	}
}

// splitListParam splits a comma-separated query value, dropping empty
// segments
func splitListParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
