package engine

import "time"

// ════════════════════════════════════════════════════════════
// ConflictDetector — 同一运行内的重复排班检测
// ════════════════════════════════════════════════════════════

type window struct {
	gameID string
	start  time.Time
	end    time.Time
}

// ConflictDetector 以裁判 ID 建索引，单次检查只扫描该裁判已有的安排，
// 避免大批量时 O(n²)。真实区间重叠：[start, end) 相交即冲突。
// 仅覆盖本次运行可见的安排，跨运行的兜底由存储层排他约束保证。
type ConflictDetector struct {
	gap       time.Duration // AvoidBackToBack 时两侧额外留出的间隔
	byReferee map[string][]window
	count     int
}

// NewConflictDetector 创建检测器；backToBackGap 仅在 Criteria.AvoidBackToBack 时生效
func NewConflictDetector(backToBackGap time.Duration) *ConflictDetector {
	return &ConflictDetector{gap: backToBackGap, byReferee: make(map[string][]window)}
}

// Seed 载入已持久化的安排
func (d *ConflictDetector) Seed(bookings []Booking) {
	for _, b := range bookings {
		d.add(b.RefereeID, b.GameID, b.StartsAt, b.EndsAt)
	}
}

// Record 记录一条本次运行新提议的安排
func (d *ConflictDetector) Record(refereeID string, game Game) {
	d.add(refereeID, game.ID, game.StartsAt, game.EndsAt)
}

func (d *ConflictDetector) add(refereeID, gameID string, start, end time.Time) {
	d.byReferee[refereeID] = append(d.byReferee[refereeID], window{gameID: gameID, start: start, end: end})
	d.count++
}

// Len 已记录的安排数
func (d *ConflictDetector) Len() int { return d.count }

// HasConflict 裁判在另一场比赛中已有与 game 时段重叠的安排
func (d *ConflictDetector) HasConflict(refereeID string, game Game, c Criteria) bool {
	var pad time.Duration
	if c.AvoidBackToBack {
		pad = d.gap
	}
	for _, w := range d.byReferee[refereeID] {
		if w.gameID == game.ID {
			continue
		}
		if overlaps(w.start.Add(-pad), w.end.Add(pad), game.StartsAt, game.EndsAt) {
			return true
		}
	}
	return false
}

// AssignedTo 裁判是否已被安排到该场比赛
func (d *ConflictDetector) AssignedTo(refereeID, gameID string) bool {
	for _, w := range d.byReferee[refereeID] {
		if w.gameID == gameID {
			return true
		}
	}
	return false
}

// overlaps 半开区间 [aStart, aEnd) 与 [bStart, bEnd) 是否相交
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
