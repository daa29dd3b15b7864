package service

import (
	"context"
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
)

const calendarProductID = "-//sports-manager//referee-assignment//ZH"

// ExportRunCalendar 将运行方案导出为 iCalendar，每条分配一个 VEVENT
func (s *assignmentRunService) ExportRunCalendar(ctx context.Context, runID string) ([]byte, error) {
	run, proposal, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, ErrNoProposalSnapshot
	}

	assignments := proposal.Assignments()
	ids := make([]string, 0, len(proposal.Games))
	for _, g := range proposal.Games {
		ids = append(ids, g.GameID)
	}
	games, err := s.repo.Candidate.GetGames(ctx, ids)
	if err != nil {
		s.logger.Error("加载方案比赛失败", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(fmt.Sprintf("裁判分配 %s", run.RunAt.UTC().Format("2006-01-02 15:04")))

	stamp := run.RunAt.UTC()
	for _, gp := range proposal.Games {
		game, ok := games[gp.GameID]
		for _, a := range gp.Assignments {
			event := cal.AddEvent(fmt.Sprintf("%s-%s-%s@sports-manager", run.RunID, a.GameID, a.RefereeID))
			event.SetDtStampTime(stamp)
			event.SetStartAt(gp.StartsAt.UTC())
			event.SetEndAt(gp.EndsAt.UTC())

			matchup := a.GameID
			if ok && game.HomeTeam != "" && game.AwayTeam != "" {
				matchup = game.HomeTeam + " vs " + game.AwayTeam
			}
			event.SetSummary(fmt.Sprintf("%s: %s", a.Position, matchup))
			if ok && game.Venue != "" {
				event.SetLocation(game.Venue)
			}
			event.SetDescription(describeAssignment(a.RefereeName, a.Score, a.Rationale))
		}
	}

	s.logger.Debug("导出运行日历",
		zap.String("run_id", runID),
		zap.Int("events", len(assignments)))
	return []byte(cal.Serialize()), nil
}

func describeAssignment(referee string, score float64, rationale string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "裁判: %s\n评分: %.2f", referee, score)
	if rationale != "" {
		b.WriteString("\n")
		b.WriteString(rationale)
	}
	return b.String()
}
