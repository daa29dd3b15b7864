package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/model"
	"sports-manager/backend/internal/repository"
	pkgerrors "sports-manager/backend/pkg/errors"
)

// ── Mock Repositories ──

type mockRuleRepo struct {
	rules    map[string]*model.AssignmentRule
	partners *mockPartnerRepo // GetByID 预加载搭档偏好

	failed   map[string]time.Time
	nextRuns map[string]*time.Time
}

func newMockRuleRepo(partners *mockPartnerRepo) *mockRuleRepo {
	return &mockRuleRepo{
		rules:    make(map[string]*model.AssignmentRule),
		partners: partners,
		failed:   make(map[string]time.Time),
		nextRuns: make(map[string]*time.Time),
	}
}

func (m *mockRuleRepo) Create(_ context.Context, rule *model.AssignmentRule) error {
	if rule.RuleID == "" {
		rule.RuleID = "rule-" + uuid.NewString()[:8]
	}
	cp := *rule
	m.rules[rule.RuleID] = &cp
	return nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	if m.partners != nil {
		cp.PartnerPreferences, _ = m.partners.ListByRule(ctx, id)
	}
	return &cp, nil
}

func (m *mockRuleRepo) List(_ context.Context, filter repository.RuleFilter) ([]model.AssignmentRule, int64, error) {
	var all []model.AssignmentRule
	for _, r := range m.rules {
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RuleID < all[j].RuleID })
	total := int64(len(all))
	if filter.Offset >= len(all) {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], total, nil
}

func (m *mockRuleRepo) Update(_ context.Context, rule *model.AssignmentRule) error {
	cur, ok := m.rules[rule.RuleID]
	if !ok || cur.Version != rule.Version {
		return pkgerrors.ErrOptimisticLock
	}
	rule.Version++
	cp := *rule
	m.rules[rule.RuleID] = &cp
	return nil
}

func (m *mockRuleRepo) Delete(_ context.Context, id, _ string) error {
	if _, ok := m.rules[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *mockRuleRepo) ListDue(_ context.Context, now time.Time, limit int) ([]model.AssignmentRule, error) {
	var due []model.AssignmentRule
	for _, r := range m.rules {
		if r.Enabled && r.NextRunAt != nil && !r.NextRunAt.After(now) {
			due = append(due, *r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockRuleRepo) SetNextRunAt(_ context.Context, id string, next *time.Time) error {
	m.nextRuns[id] = next
	if r, ok := m.rules[id]; ok {
		r.NextRunAt = next
	}
	return nil
}

func (m *mockRuleRepo) MarkRunFailed(_ context.Context, id string, at time.Time) error {
	m.failed[id] = at
	if r, ok := m.rules[id]; ok {
		r.TotalRuns++
		status := "failed"
		r.LastRunAt, r.LastRunStatus = &at, &status
	}
	return nil
}

type mockPartnerRepo struct {
	prefs map[string]*model.RulePartnerPreference
}

func newMockPartnerRepo() *mockPartnerRepo {
	return &mockPartnerRepo{prefs: make(map[string]*model.RulePartnerPreference)}
}

func (m *mockPartnerRepo) ListByRule(_ context.Context, ruleID string) ([]model.RulePartnerPreference, error) {
	var out []model.RulePartnerPreference
	for _, p := range m.prefs {
		if p.RuleID == ruleID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PreferenceID < out[j].PreferenceID })
	return out, nil
}

func (m *mockPartnerRepo) GetByID(_ context.Context, id string) (*model.RulePartnerPreference, error) {
	if p, ok := m.prefs[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPartnerRepo) Create(_ context.Context, pref *model.RulePartnerPreference) error {
	pref.Canonicalize()
	for _, p := range m.prefs {
		if p.RuleID == pref.RuleID && p.RefereeAID == pref.RefereeAID && p.RefereeBID == pref.RefereeBID {
			return repository.ErrDuplicatePartner
		}
	}
	if pref.PreferenceID == "" {
		pref.PreferenceID = fmt.Sprintf("pref-%d", len(m.prefs)+1)
	}
	cp := *pref
	m.prefs[pref.PreferenceID] = &cp
	return nil
}

func (m *mockPartnerRepo) Delete(_ context.Context, ruleID, id string) error {
	p, ok := m.prefs[id]
	if !ok || p.RuleID != ruleID {
		return gorm.ErrRecordNotFound
	}
	delete(m.prefs, id)
	return nil
}

// mockRunRepo 与 memEngineStore 共享运行记录
type mockRunRepo struct {
	store *memEngineStore
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (*model.AssignmentRun, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, r := range m.store.runs {
		if r.RunID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRunRepo) ListByRule(_ context.Context, ruleID string, offset, limit int) ([]model.AssignmentRun, int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []model.AssignmentRun
	for i := len(m.store.runs) - 1; i >= 0; i-- {
		if r := m.store.runs[i]; r.RuleID == ruleID {
			r.Proposal = nil
			out = append(out, r)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *mockRunRepo) ListAssignments(_ context.Context, runID string) ([]model.GameAssignment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []model.GameAssignment
	for _, row := range m.store.rows {
		if row.RunID == runID {
			out = append(out, model.GameAssignment{GameID: row.GameID, RefereeID: row.RefereeID, PositionID: row.PositionID})
		}
	}
	return out, nil
}

type mockCandidateRepo struct {
	games    []model.Game
	referees []engine.Referee
	bookings []engine.Booking

	lastFilter repository.GameFilter
}

func (m *mockCandidateRepo) ListGames(_ context.Context, filter repository.GameFilter) ([]engine.Game, error) {
	m.lastFilter = filter
	var out []engine.Game
	for _, g := range m.games {
		if g.StartsAt.Before(filter.From) || g.StartsAt.After(filter.To) {
			continue
		}
		out = append(out, engine.Game{
			ID:         g.GameID,
			StartsAt:   g.StartsAt,
			EndsAt:     g.EndsAt,
			Venue:      g.Venue,
			RefsNeeded: g.RefsNeeded,
			GameType:   g.GameType,
			Level:      g.Level,
			AgeGroup:   g.AgeGroup,
			HomeTeam:   g.HomeTeam,
			AwayTeam:   g.AwayTeam,
		})
	}
	return out, nil
}

func (m *mockCandidateRepo) ListReferees(_ context.Context, _ time.Time) ([]engine.Referee, error) {
	return m.referees, nil
}

func (m *mockCandidateRepo) ListBookings(_ context.Context, _, _ time.Time) ([]engine.Booking, error) {
	return m.bookings, nil
}

func (m *mockCandidateRepo) GetGames(_ context.Context, ids []string) (map[string]model.Game, error) {
	out := make(map[string]model.Game, len(ids))
	for _, id := range ids {
		for _, g := range m.games {
			if g.GameID == id {
				out[id] = g
			}
		}
	}
	return out, nil
}

// ── 内存版 engine.Store ──

type memEngineStore struct {
	mu         sync.Mutex
	rows       []engine.AssignmentRow
	runs       []model.AssignmentRun
	failInsert error
}

func (s *memEngineStore) WithinTx(ctx context.Context, fn func(tx engine.Store) error) error {
	tx := &memEngineStore{failInsert: s.failInsert}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, tx.rows...)
	s.runs = append(s.runs, tx.runs...)
	return nil
}

func (s *memEngineStore) ResolvePositions(_ context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = "pos-" + n
	}
	return out, nil
}

func (s *memEngineStore) InsertAssignments(_ context.Context, rows []engine.AssignmentRow) error {
	if s.failInsert != nil {
		return s.failInsert
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memEngineStore) IncrementRuleCounters(context.Context, string, int, int, engine.RunStatus, time.Time) error {
	return nil
}

func (s *memEngineStore) InsertRunRecord(_ context.Context, rec *engine.RunRecord) error {
	raw, err := json.Marshal(rec.Proposal)
	if err != nil {
		return err
	}
	run := model.AssignmentRun{
		RunID:              rec.ID,
		RuleID:             rec.RuleID,
		RunAt:              rec.RunAt,
		Status:             string(rec.Status),
		DryRun:             rec.DryRun,
		Trigger:            rec.Trigger,
		GamesProcessed:     rec.GamesProcessed,
		AssignmentsCreated: rec.AssignmentsCreated,
		ConflictsFound:     rec.ConflictsFound,
		DurationMs:         rec.DurationMs,
		Proposal:           datatypes.JSON(raw),
	}
	if rec.Error != "" {
		msg := rec.Error
		run.Error = &msg
	}
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
	return nil
}

// ── 测试辅助 ──

type mockRecommender struct {
	err   error
	calls int
}

func (r *mockRecommender) Recommend(_ context.Context, req engine.RecommendRequest) (*engine.RecommendResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	res := &engine.RecommendResult{Model: "mock"}
	for _, g := range req.Games {
		for _, ref := range req.Referees {
			res.Recommendations = append(res.Recommendations, engine.Recommendation{
				GameID: g.ID, RefereeID: ref.ID, Confidence: 0.8,
			})
		}
	}
	return res, nil
}

var testLevels = engine.NewLevelRanking([]string{"Junior", "Intermediate", "Senior"})

func newTestPlanner(rec engine.Recommender) *engine.Planner {
	return engine.NewPlanner(engine.Config{
		Scoring: engine.ScoringConfig{
			Levels:              testLevels,
			ExperienceNormYears: 10,
			DefaultDistanceKm:   50,
			PartnerDelta:        0.25,
			RationaleThreshold:  0.5,
		},
		BackToBackGap: 30 * time.Minute,
	}, func(engine.Referee, engine.Game) (float64, bool) { return 5, true }, rec)
}

func strPtr(s string) *string { return &s }
