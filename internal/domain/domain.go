package domain

import (
	"time"
)

// RoundType identifies one of the fixed rounds of a match.
type RoundType string

const (
	RoundKhoiDong RoundType = "khoi_dong"
	RoundVCNV     RoundType = "vcnv"
	RoundVuotCNV  RoundType = "vuot_cnv"
	RoundVeDich   RoundType = "ve_dich"
)

// RoundSequence is the order rounds are played in.
var RoundSequence = []RoundType{RoundKhoiDong, RoundVCNV, RoundVuotCNV, RoundVeDich}

func (r RoundType) Valid() bool {
	return r.position() >= 0
}

// Next returns the round after r. ok is false when r is the last round or unknown.
func (r RoundType) Next() (next RoundType, ok bool) {
	i := r.position()
	if i < 0 || i == len(RoundSequence)-1 {
		return "", false
	}

	return RoundSequence[i+1], true
}

func (r RoundType) position() int {
	for i, t := range RoundSequence {
		if t == r {
			return i
		}
	}

	return -1
}

type Outcome string

const (
	OutcomeCorrect Outcome = "correct"
	OutcomeWrong   Outcome = "wrong"
	OutcomeTimeout Outcome = "timeout"
)

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchCompleted MatchStatus = "completed"
)

type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionEnded   SessionStatus = "ended"
)

type QuestionState string

const (
	QuestionIdle      QuestionState = "idle"
	QuestionShowing   QuestionState = "showing"
	QuestionAnswering QuestionState = "answering"
	QuestionResolved  QuestionState = "resolved"
)

// Match represents a scheduled contest.
type Match struct {
	MatchID      string
	Name         string
	Status       MatchStatus
	ScheduledAt  time.Time
	TournamentID string
	CreateTime   time.Time
}

// Round is one occurrence of a round type within a match.
type Round struct {
	RoundID  string
	MatchID  string
	Type     RoundType
	Position int
}

// LiveSession is the runtime pointer state of a match being played.
// Version is bumped on every write and used for compare-and-swap updates.
type LiveSession struct {
	SessionID       string
	MatchID         string
	JoinCode        string
	Status          SessionStatus
	RoundType       RoundType
	RoundID         string
	RoundQuestionID string
	QuestionState   QuestionState
	TimerDeadline   *time.Time
	Version         int64
	UpdateTime      time.Time
}

// Player is a seat in a match.
type Player struct {
	PlayerID      string
	MatchID       string
	ParticipantID string
	SeatIndex     int
	DisplayName   string
	Disqualified  bool
	Total         int64
}

// RoundQuestion binds a question to a round occurrence.
type RoundQuestion struct {
	RoundQuestionID string
	RoundID         string
	RoundType       RoundType
	Sequence        int
	Code            string
	QuestionID      string

	// Obstacle marks the keyword question of the VCNV round.
	Obstacle bool
	// Revealed marks a VCNV cell as opened.
	Revealed bool

	TargetPlayerID string
	PackageValue   int64
	StarOfHope     bool

	QuestionText string
	AnswerText   string
}

// ScoreEntry is one append-only ledger row.
type ScoreEntry struct {
	EntryID         string
	MatchID         string
	SessionID       string
	PlayerID        string
	RoundQuestionID string
	RoundType       RoundType
	Outcome         Outcome
	Delta           int64
	Total           int64
	CreateTime      time.Time
}

// Decision is the host's judgment of one player's answer.
type Decision struct {
	PlayerID        string
	RoundQuestionID string
	Outcome         Outcome
}

// Standing is a player's position in the ledger-derived ranking of a match.
type Standing struct {
	PlayerID    string
	DisplayName string
	SeatIndex   int
	Total       int64
}

// Leaderboard represents the players of a match and their totals.
// The list is sorted by score in descending order.
type Leaderboard struct {
	MatchID string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerID string
	Score    float64
}
