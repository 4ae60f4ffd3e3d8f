package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/changeledger/changeledger/pkg/analytics"
	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/observability"
	"github.com/changeledger/changeledger/pkg/store"
)

// Cleanup batch bounds
const (
	defaultCleanupBatchSize = 100
	maxCleanupBatchSize     = 1000
)

// sortFields are the listing columns a caller may sort by
var sortFields = map[string]bool{
	"id":             true,
	"entity_id":      true,
	"entity_name":    true,
	"state":          true,
	"correlation_id": true,
	"session_id":     true,
	"snapshot_id":    true,
	"created_at":     true,
	"creator_id":     true,
}

// AuditLogHandlers serves the audit log read, export, and retention
// endpoints
type AuditLogHandlers struct {
	store  store.Store
	logger *observability.Logger
	now    func() time.Time
}

// NewAuditLogHandlers creates handlers over the given store
func NewAuditLogHandlers(st store.Store, logger *observability.Logger, now func() time.Time) *AuditLogHandlers {
	if now == nil {
		now = time.Now
	}
	return &AuditLogHandlers{
		store:  st,
		logger: logger,
		now:    now,
	}
}

// RegisterRoutes registers audit log routes with the router. Literal
// paths register before the id route so mux matches them first.
func (h *AuditLogHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/audit-logs", h.ListAuditLogs).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/export", h.ExportAuditLogs).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/cleanup", h.CleanupAuditLogs).Methods("DELETE")
	r.HandleFunc("/api/v1/audit-logs/{id}", h.GetAuditLog).Methods("GET")
	r.HandleFunc("/api/v1/audit-logs/{id}/property-changes", h.GetPropertyChanges).Methods("GET")
}

// GetAuditLog returns one audit log with its property changes
func (h *AuditLogHandlers) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	log, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "audit log not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to get audit log", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// ListAuditLogs returns one page of filtered audit logs
func (h *AuditLogHandlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := h.listFilterFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logs, total, err := h.store.GetPage(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to list audit logs", http.StatusInternalServerError)
		return
	}

	totalPages := total / filter.PerPage
	if total%filter.PerPage != 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, PagedResponse{
		Data:       logs,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalCount: total,
		TotalPages: totalPages,
	})
}

// GetPropertyChanges returns one audit log's property changes ordered by
// property name
func (h *AuditLogHandlers) GetPropertyChanges(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.store.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "audit log not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to get audit log", http.StatusInternalServerError)
		return
	}

	changes, err := h.store.PropertyChangesFor(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to get property changes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, changes)
}

// ExportAuditLogs serializes all logs matching the filter as a download.
// The date range defaults to the last seven days.
func (h *AuditLogHandlers) ExportAuditLogs(w http.ResponseWriter, r *http.Request) {
	format, err := store.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

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

	query := r.URL.Query()
	logs, err := h.store.ListForAnalysis(r.Context(), store.AnalysisFilter{
		StartDate:  dateRange.Start,
		EndDate:    dateRange.End,
		EntityID:   query.Get("entity_id"),
		EntityName: query.Get("entity_name"),
		CreatorID:  query.Get("creator_id"),
		States:     states,
	})
	if err != nil {
		http.Error(w, "failed to load audit logs", http.StatusInternalServerError)
		return
	}

	data, err := store.Export(logs, format)
	if err != nil {
		http.Error(w, "failed to export audit logs", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("audit-logs-%s.%s", h.now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// CleanupAuditLogs deletes logs created before the cutoff in batches,
// optionally archiving each batch first
func (h *AuditLogHandlers) CleanupAuditLogs(w http.ResponseWriter, r *http.Request) {
	cutoff, ok, err := parseTimeParam(r, "older_than")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		http.Error(w, "older_than is required", http.StatusBadRequest)
		return
	}

	batchSize, err := parseIntParam(r, "batch_size", defaultCleanupBatchSize, 1, maxCleanupBatchSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	archive, err := parseBoolParam(r, "archive", false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := h.store.DeleteOlderThan(r.Context(), cutoff, batchSize, archive)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).WithField("deleted", deleted).Error("cleanup failed")
		}
		http.Error(w, "cleanup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{
		DeletedCount: deleted,
		Cutoff:       cutoff,
		Archived:     archive,
	})
}

// listFilterFromRequest validates listing parameters; out-of-range
// values are rejected, never silently corrected
func (h *AuditLogHandlers) listFilterFromRequest(r *http.Request) (store.ListFilter, error) {
	query := r.URL.Query()

	filter := store.ListFilter{
		EntityID:      query.Get("entity_id"),
		EntityName:    query.Get("entity_name"),
		CreatorID:     query.Get("creator_id"),
		CorrelationID: query.Get("correlation_id"),
		SessionID:     query.Get("session_id"),
		SnapshotID:    query.Get("snapshot_id"),
	}

	if raw := query.Get("state"); raw != "" {
		state, err := audit.ParseState(raw)
		if err != nil {
			return store.ListFilter{}, err
		}
		filter.State = &state
	}

	if start, ok, err := parseTimeParam(r, "start_date"); err != nil {
		return store.ListFilter{}, err
	} else if ok {
		filter.StartDate = &start
	}
	if end, ok, err := parseTimeParam(r, "end_date"); err != nil {
		return store.ListFilter{}, err
	} else if ok {
		filter.EndDate = &end
	}

	if sortBy := query.Get("sort_by"); sortBy != "" {
		if !sortFields[sortBy] {
			return store.ListFilter{}, fmt.Errorf("invalid sort_by: %q", sortBy)
		}
		filter.SortBy = sortBy
	}
	switch order := store.SortOrder(query.Get("sort_order")); order {
	case "", store.SortAsc, store.SortDesc:
		filter.SortOrder = order
	default:
		return store.ListFilter{}, fmt.Errorf("invalid sort_order: %q", order)
	}

	page, err := parseIntParam(r, "page", 1, 1, 1<<30)
	if err != nil {
		return store.ListFilter{}, err
	}
	perPage, err := parseIntParam(r, "per_page", store.DefaultPerPage, 1, store.MaxPerPage)
	if err != nil {
		return store.ListFilter{}, err
	}
	filter.Page = page
	filter.PerPage = perPage

	return filter, nil
}

// dateRangeFromRequest builds a range from start_date and end_date,
// defaulting each missing bound independently to the last seven days
// through now
func dateRangeFromRequest(r *http.Request, now time.Time) (analytics.DateRange, error) {
	dateRange := analytics.DefaultDateRange(now)

	if start, ok, err := parseTimeParam(r, "start_date"); err != nil {
		return analytics.DateRange{}, err
	} else if ok {
		dateRange.Start = start
	}
	if end, ok, err := parseTimeParam(r, "end_date"); err != nil {
		return analytics.DateRange{}, err
	} else if ok {
		dateRange.End = end
	}

	return dateRange, dateRange.Validate()
}
