package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/observability"
	"github.com/changeledger/changeledger/pkg/store"
)

const topRankSize = 10

// autoPropertyCount is how many properties a trend analyzes when the
// request names none
const autoPropertyCount = 5

// ServiceConfig wires a Service's collaborators. All fields are optional.
type ServiceConfig struct {
	Cache   Cache
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Service computes read-only aggregate reports over stored audit logs.
// Every report validates its request first and returns a well-formed
// zero-valued response when no records match.
type Service struct {
	store   store.Store
	cache   Cache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates an analytics service over the given store
func NewService(st store.Store, cfg ServiceConfig) *Service {
	return &Service{
		store:   st,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// EntityChangeSummary summarizes one entity's change history: totals,
// creation and last-modification attribution, and its ten most frequently
// changed properties.
func (s *Service) EntityChangeSummary(ctx context.Context, req EntityChangeSummaryRequest) (*EntityChangeSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer s.observeReport("entity_change_summary", time.Now())

	key := cacheKey("entity_change_summary", req.EntityID, req.EntityName, req.Range)
	var cached EntityChangeSummary
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.store.ListForAnalysis(ctx, store.AnalysisFilter{
		StartDate:  req.Range.Start,
		EndDate:    req.Range.End,
		EntityID:   req.EntityID,
		EntityName: req.EntityName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	summary := &EntityChangeSummary{
		EntityID:              req.EntityID,
		EntityName:            req.EntityName,
		MostChangedProperties: []PropertyChangeFrequency{},
	}
	if len(logs) == 0 {
		return summary, nil
	}

	first := logs[0]
	last := logs[len(logs)-1]

	summary.CreatedAt = &first.CreatedAt
	summary.CreatorID = first.CreatorID
	// A trailing delete means there is nothing left to attribute a
	// modification to
	if last.State != audit.StateDeleted {
		summary.LastModifiedAt = &last.CreatedAt
		summary.LastModifierID = last.CreatorID
	}
	summary.TotalChanges = len(logs)
	summary.MostChangedProperties = topProperties(logs, topRankSize)

	s.storeCache(ctx, key, summary)
	return summary, nil
}

// UserActivityAnalysis groups changes by their creator. Records without a
// creator count toward TotalChangeCount and the daily distribution but
// never toward a user. MinActivityCount filters the ranking, the active
// user total, and the per-user average, but not TotalChangeCount.
func (s *Service) UserActivityAnalysis(ctx context.Context, req UserActivityAnalysisRequest) (*UserActivityAnalysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer s.observeReport("user_activity_analysis", time.Now())

	key := cacheKey("user_activity_analysis", req.Range, req.UserID, req.EntityName, req.MinActivityCount)
	var cached UserActivityAnalysis
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.store.ListForAnalysis(ctx, store.AnalysisFilter{
		StartDate:  req.Range.Start,
		EndDate:    req.Range.End,
		CreatorID:  req.UserID,
		EntityName: req.EntityName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	analysis := &UserActivityAnalysis{
		MostActiveUsers:      []UserActivity{},
		ActivityDistribution: map[string]int{},
	}
	if len(logs) == 0 {
		return analysis, nil
	}

	byUser := make(map[string]*UserActivity)
	for _, log := range logs {
		if log.CreatorID == nil {
			continue
		}
		activity, ok := byUser[*log.CreatorID]
		if !ok {
			activity = &UserActivity{
				UserID:          *log.CreatorID,
				ChangesByEntity: map[string]int{},
				ChangesByState:  map[string]int{},
			}
			byUser[*log.CreatorID] = activity
		}
		activity.ChangeCount++
		if log.CreatedAt.After(activity.LastActivityTime) {
			activity.LastActivityTime = log.CreatedAt
		}
		activity.ChangesByEntity[log.EntityName]++
		activity.ChangesByState[log.State.String()]++
	}

	activities := make([]UserActivity, 0, len(byUser))
	for _, activity := range byUser {
		if req.MinActivityCount != nil && activity.ChangeCount < *req.MinActivityCount {
			continue
		}
		activities = append(activities, *activity)
	}

	sort.Slice(activities, func(i, j int) bool {
		if activities[i].ChangeCount != activities[j].ChangeCount {
			return activities[i].ChangeCount > activities[j].ChangeCount
		}
		return activities[i].UserID < activities[j].UserID
	})

	analysis.TotalActiveUsers = len(activities)
	analysis.TotalChangeCount = len(logs)
	analysis.MostActiveUsers = topN(activities, topRankSize)
	if len(activities) > 0 {
		analysis.AverageChangesPerUser = round2(float64(len(logs)) / float64(len(activities)))
	}

	for _, log := range logs {
		analysis.ActivityDistribution[log.CreatedAt.UTC().Format("2006-01-02")]++
	}

	s.storeCache(ctx, key, analysis)
	return analysis, nil
}

// MostModifiedEntities ranks entities by change volume within the range
func (s *Service) MostModifiedEntities(ctx context.Context, req MostModifiedEntitiesRequest) (*MostModifiedEntities, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer s.observeReport("most_modified_entities", time.Now())

	key := cacheKey("most_modified_entities", req.Range, req.EntityNames, req.UserID)
	var cached MostModifiedEntities
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.store.ListForAnalysis(ctx, store.AnalysisFilter{
		StartDate:   req.Range.Start,
		EndDate:     req.Range.End,
		EntityNames: req.EntityNames,
		CreatorID:   req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	result := &MostModifiedEntities{
		Period:              req.Range,
		Entities:            []ModifiedEntity{},
		ChangesByEntityName: map[string]int{},
	}
	if len(logs) == 0 {
		return result, nil
	}

	type groupKey struct {
		id   string
		name string
	}
	groups := make(map[groupKey]*ModifiedEntity)
	creators := make(map[groupKey]map[string]struct{})

	for _, log := range logs {
		result.ChangesByEntityName[log.EntityName]++

		gk := groupKey{id: log.EntityID, name: log.EntityName}
		entity, ok := groups[gk]
		if !ok {
			entity = &ModifiedEntity{
				EntityID:          log.EntityID,
				EntityName:        log.EntityName,
				StateDistribution: map[string]int{},
			}
			groups[gk] = entity
			creators[gk] = map[string]struct{}{}
		}
		entity.ChangeCount++
		if log.CreatedAt.After(entity.LastModified) {
			entity.LastModified = log.CreatedAt
		}
		entity.StateDistribution[log.State.String()]++
		if log.CreatorID != nil {
			creators[gk][*log.CreatorID] = struct{}{}
		}
	}

	entities := make([]ModifiedEntity, 0, len(groups))
	for gk, entity := range groups {
		entity.UniqueUserCount = len(creators[gk])
		entities = append(entities, *entity)
	}
	sortModifiedEntities(entities)

	result.Entities = topN(entities, topRankSize)

	s.storeCache(ctx, key, result)
	return result, nil
}

// EntityChangesTrend builds dense time series of one entity type's
// changes: overall, per state, and per property. When the request names no
// properties the five most changed in range are analyzed.
func (s *Service) EntityChangesTrend(ctx context.Context, req EntityChangesTrendRequest) (*EntityChangesTrend, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Grouping == "" {
		req.Grouping = GroupDaily
	}
	defer s.observeReport("entity_changes_trend", time.Now())

	// Trend ranges cover whole days
	period := DateRange{
		Start: dateOf(req.Range.Start),
		End:   dateOf(req.Range.End).AddDate(0, 0, 1).Add(-time.Nanosecond),
	}

	key := cacheKey("entity_changes_trend", req.EntityName, period, req.Grouping, req.PropertyNames)
	var cached EntityChangesTrend
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.store.ListForAnalysis(ctx, store.AnalysisFilter{
		StartDate:  period.Start,
		EndDate:    period.End,
		EntityName: req.EntityName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	trend := &EntityChangesTrend{
		EntityName:        req.EntityName,
		Period:            period,
		ChangesByInterval: []TimeSeriesPoint{},
		ChangesByState:    map[string][]TimeSeriesPoint{},
		ChangesByProperty: map[string][]TimeSeriesPoint{},
	}
	if len(logs) == 0 {
		return trend, nil
	}

	buckets := bucketsFor(req.Range, req.Grouping)

	totals := make(map[time.Time]int)
	for _, log := range logs {
		totals[bucketFor(log.CreatedAt, req.Grouping)]++
	}
	trend.ChangesByInterval = denseSeries(buckets, totals)

	for _, state := range audit.AllStates() {
		counts := make(map[time.Time]int)
		for _, log := range logs {
			if log.State == state {
				counts[bucketFor(log.CreatedAt, req.Grouping)]++
			}
		}
		trend.ChangesByState[state.String()] = denseSeries(buckets, counts)
	}

	properties := req.PropertyNames
	if len(properties) == 0 {
		properties = topPropertyNames(logs, autoPropertyCount)
	}
	for _, name := range properties {
		counts := make(map[time.Time]int)
		for _, log := range logs {
			bucket := bucketFor(log.CreatedAt, req.Grouping)
			for _, change := range log.PropertyChanges {
				if change.PropertyName == name {
					counts[bucket]++
				}
			}
		}
		trend.ChangesByProperty[name] = denseSeries(buckets, counts)
	}

	s.storeCache(ctx, key, trend)
	return trend, nil
}

// UserChangeBehavior describes one user's change patterns: when they work
// (hour of day, day of week, zero-filled), what they touch, and their most
// modified entities and properties.
func (s *Service) UserChangeBehavior(ctx context.Context, req UserChangeBehaviorRequest) (*UserChangeBehavior, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer s.observeReport("user_change_behavior", time.Now())

	key := cacheKey("user_change_behavior", req.UserID, req.Range, req.EntityNames, req.States)
	var cached UserChangeBehavior
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	logs, err := s.store.ListForAnalysis(ctx, store.AnalysisFilter{
		StartDate:   req.Range.Start,
		EndDate:     req.Range.End,
		CreatorID:   req.UserID,
		EntityNames: req.EntityNames,
		States:      req.States,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit logs: %w", err)
	}

	behavior := &UserChangeBehavior{
		UserID:                req.UserID,
		Period:                req.Range,
		ChangesByHourOfDay:    map[int]int{},
		ChangesByDayOfWeek:    map[string]int{},
		ChangesByEntity:       map[string]int{},
		ChangesByState:        map[string]int{},
		MostModifiedEntities:  []ModifiedEntity{},
		MostChangedProperties: []PropertyChangeFrequency{},
	}
	if len(logs) == 0 {
		return behavior, nil
	}

	for hour := 0; hour < 24; hour++ {
		behavior.ChangesByHourOfDay[hour] = 0
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		behavior.ChangesByDayOfWeek[day.String()] = 0
	}

	type groupKey struct {
		id   string
		name string
	}
	groups := make(map[groupKey]*ModifiedEntity)

	for _, log := range logs {
		createdAt := log.CreatedAt.UTC()
		behavior.ChangesByHourOfDay[createdAt.Hour()]++
		behavior.ChangesByDayOfWeek[createdAt.Weekday().String()]++
		behavior.ChangesByEntity[log.EntityName]++
		behavior.ChangesByState[log.State.String()]++

		gk := groupKey{id: log.EntityID, name: log.EntityName}
		entity, ok := groups[gk]
		if !ok {
			entity = &ModifiedEntity{
				EntityID:          log.EntityID,
				EntityName:        log.EntityName,
				UniqueUserCount:   1,
				StateDistribution: map[string]int{},
			}
			groups[gk] = entity
		}
		entity.ChangeCount++
		if log.CreatedAt.After(entity.LastModified) {
			entity.LastModified = log.CreatedAt
		}
		entity.StateDistribution[log.State.String()]++
	}

	entities := make([]ModifiedEntity, 0, len(groups))
	for _, entity := range groups {
		entities = append(entities, *entity)
	}
	sortModifiedEntities(entities)

	behavior.TotalChanges = len(logs)
	behavior.MostModifiedEntities = topN(entities, topRankSize)
	behavior.MostChangedProperties = topProperties(logs, topRankSize)

	s.storeCache(ctx, key, behavior)
	return behavior, nil
}

// topProperties ranks property changes by (name, type) count descending,
// ties broken by name then type ascending
func topProperties(logs []*audit.Log, n int) []PropertyChangeFrequency {
	type propKey struct {
		name     string
		typeName string
	}
	counts := make(map[propKey]int)
	for _, log := range logs {
		for _, change := range log.PropertyChanges {
			counts[propKey{name: change.PropertyName, typeName: change.PropertyType}]++
		}
	}

	frequencies := make([]PropertyChangeFrequency, 0, len(counts))
	for key, count := range counts {
		frequencies = append(frequencies, PropertyChangeFrequency{
			PropertyName: key.name,
			PropertyType: key.typeName,
			ChangeCount:  count,
		})
	}
	sort.Slice(frequencies, func(i, j int) bool {
		if frequencies[i].ChangeCount != frequencies[j].ChangeCount {
			return frequencies[i].ChangeCount > frequencies[j].ChangeCount
		}
		if frequencies[i].PropertyName != frequencies[j].PropertyName {
			return frequencies[i].PropertyName < frequencies[j].PropertyName
		}
		return frequencies[i].PropertyType < frequencies[j].PropertyType
	})

	return topN(frequencies, n)
}

// topPropertyNames ranks property names by change count for auto-selected
// trend series
func topPropertyNames(logs []*audit.Log, n int) []string {
	counts := make(map[string]int)
	for _, log := range logs {
		for _, change := range log.PropertyChanges {
			counts[change.PropertyName]++
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	return topN(names, n)
}

// sortModifiedEntities orders by change count descending, ties broken by
// entity name then id ascending
func sortModifiedEntities(entities []ModifiedEntity) {
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].ChangeCount != entities[j].ChangeCount {
			return entities[i].ChangeCount > entities[j].ChangeCount
		}
		if entities[i].EntityName != entities[j].EntityName {
			return entities[i].EntityName < entities[j].EntityName
		}
		return entities[i].EntityID < entities[j].EntityID
	})
}

func topN[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// round2 rounds half away from zero to two decimals
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *Service) observeReport(report string, start time.Time) {
	if s.metrics != nil {
		s.metrics.AnalyticsQueryDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
	}
}

// fromCache loads a cached report into out; cache failures degrade to a
// miss
func (s *Service) fromCache(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("analytics cache read failed")
		}
		return false
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.AnalyticsCacheMisses.Inc()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	if s.metrics != nil {
		s.metrics.AnalyticsCacheHits.Inc()
	}
	return true
}

func (s *Service) storeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("analytics cache write failed")
	}
}
