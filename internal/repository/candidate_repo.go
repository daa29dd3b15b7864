package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sports-manager/backend/internal/engine"
	"sports-manager/backend/internal/model"
)

// GameFilter 待分配比赛查询条件
type GameFilter struct {
	From      time.Time
	To        time.Time
	GameTypes []string
	AgeGroups []string
}

// CandidateRepository 规则运行的候选数据来源（比赛、裁判、已有安排）
type CandidateRepository interface {
	// ListGames 窗口内仍缺裁判的比赛；RefsNeeded 已扣除现有分配
	ListGames(ctx context.Context, filter GameFilter) ([]engine.Game, error)
	// ListReferees 在职裁判，CurrentLoad 为 since 之后的有效分配数
	ListReferees(ctx context.Context, since time.Time) ([]engine.Referee, error)
	// ListBookings 与 [from, to] 相交的有效分配
	ListBookings(ctx context.Context, from, to time.Time) ([]engine.Booking, error)
	GetGames(ctx context.Context, ids []string) (map[string]model.Game, error)
}

type candidateRepo struct {
	db *gorm.DB
}

func NewCandidateRepo(db *gorm.DB) CandidateRepository {
	return &candidateRepo{db: db}
}

type countRow struct {
	GroupKey string
	Total    int
}

func (r *candidateRepo) ListGames(ctx context.Context, filter GameFilter) ([]engine.Game, error) {
	var games []model.Game
	query := r.db.WithContext(ctx).
		Where("status = ? AND starts_at >= ? AND starts_at <= ?", model.GameStatusScheduled, filter.From, filter.To)
	if len(filter.GameTypes) > 0 {
		query = query.Where("game_type IN ?", filter.GameTypes)
	}
	if len(filter.AgeGroups) > 0 {
		query = query.Where("age_group IN ?", filter.AgeGroups)
	}
	if err := query.Order("starts_at ASC, game_id ASC").Find(&games).Error; err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}

	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.GameID
	}
	var counts []countRow
	err := r.db.WithContext(ctx).
		Model(&model.GameAssignment{}).
		Select("game_id AS group_key, COUNT(*) AS total").
		Where("game_id IN ? AND status = ?", ids, model.AssignmentStatusAssigned).
		Group("game_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	assigned := make(map[string]int, len(counts))
	for _, c := range counts {
		assigned[c.GroupKey] = c.Total
	}

	out := make([]engine.Game, 0, len(games))
	for _, g := range games {
		remaining := g.RefsNeeded - assigned[g.GameID]
		if remaining <= 0 {
			continue
		}
		eg := toEngineGame(g)
		eg.RefsNeeded = remaining
		out = append(out, eg)
	}
	return out, nil
}

func (r *candidateRepo) ListReferees(ctx context.Context, since time.Time) ([]engine.Referee, error) {
	var refs []model.Referee
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("referee_id ASC").
		Find(&refs).Error
	if err != nil {
		return nil, err
	}

	var counts []countRow
	err = r.db.WithContext(ctx).
		Model(&model.GameAssignment{}).
		Select("referee_id AS group_key, COUNT(*) AS total").
		Where("status = ? AND starts_at >= ?", model.AssignmentStatusAssigned, since).
		Group("referee_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	load := make(map[string]int, len(counts))
	for _, c := range counts {
		load[c.GroupKey] = c.Total
	}

	out := make([]engine.Referee, len(refs))
	for i, ref := range refs {
		out[i] = engine.Referee{
			ID:              ref.RefereeID,
			Name:            ref.Name,
			Available:       ref.Available,
			Level:           ref.Level,
			YearsExperience: ref.YearsExperience,
			Location:        point(ref.HomeLat, ref.HomeLng),
			CurrentLoad:     load[ref.RefereeID],
		}
	}
	return out, nil
}

func (r *candidateRepo) ListBookings(ctx context.Context, from, to time.Time) ([]engine.Booking, error) {
	var rows []model.GameAssignment
	err := r.db.WithContext(ctx).
		Select("referee_id", "game_id", "position_id", "starts_at", "ends_at").
		Preload("Position").
		Where("status = ? AND starts_at <= ? AND ends_at >= ?", model.AssignmentStatusAssigned, to, from).
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]engine.Booking, len(rows))
	for i, row := range rows {
		out[i] = engine.Booking{
			RefereeID: row.RefereeID,
			GameID:    row.GameID,
			StartsAt:  row.StartsAt,
			EndsAt:    row.EndsAt,
		}
		if row.Position != nil {
			out[i].Position = row.Position.Name
		}
	}
	return out, nil
}

func (r *candidateRepo) GetGames(ctx context.Context, ids []string) (map[string]model.Game, error) {
	out := make(map[string]model.Game, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var games []model.Game
	if err := r.db.WithContext(ctx).Where("game_id IN ?", ids).Find(&games).Error; err != nil {
		return nil, err
	}
	for _, g := range games {
		out[g.GameID] = g
	}
	return out, nil
}

func toEngineGame(g model.Game) engine.Game {
	return engine.Game{
		ID:         g.GameID,
		StartsAt:   g.StartsAt,
		EndsAt:     g.EndsAt,
		Venue:      g.Venue,
		Location:   point(g.VenueLat, g.VenueLng),
		RefsNeeded: g.RefsNeeded,
		GameType:   g.GameType,
		Level:      g.Level,
		AgeGroup:   g.AgeGroup,
		HomeTeam:   g.HomeTeam,
		AwayTeam:   g.AwayTeam,
	}
}

func point(lat, lng *float64) *engine.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &engine.GeoPoint{Lat: *lat, Lng: *lng}
}
