package api

import (
	"time"

	"github.com/victornm/olympia/internal/domain"
)

type (
	Match struct {
		MatchID      string    `json:"match_id"`
		Name         string    `json:"name"`
		Status       string    `json:"status"`
		ScheduledAt  time.Time `json:"scheduled_at"`
		TournamentID string    `json:"tournament_id,omitempty"`
	}

	Player struct {
		PlayerID      string `json:"player_id"`
		MatchID       string `json:"match_id"`
		ParticipantID string `json:"participant_id,omitempty"`
		SeatIndex     int    `json:"seat_index"`
		DisplayName   string `json:"display_name"`
		Disqualified  bool   `json:"disqualified"`
		Total         int64  `json:"total"`
	}

	Session struct {
		SessionID       string     `json:"session_id"`
		MatchID         string     `json:"match_id"`
		JoinCode        string     `json:"join_code"`
		Status          string     `json:"status"`
		RoundType       string     `json:"round_type,omitempty"`
		RoundID         string     `json:"round_id,omitempty"`
		RoundQuestionID string     `json:"round_question_id,omitempty"`
		QuestionState   string     `json:"question_state"`
		TimerDeadline   *time.Time `json:"timer_deadline,omitempty"`
		Version         int64      `json:"version"`
	}

	Round struct {
		RoundID   string          `json:"round_id"`
		MatchID   string          `json:"match_id"`
		Type      string          `json:"type"`
		Position  int             `json:"position"`
		Questions []RoundQuestion `json:"questions,omitempty"`
	}

	RoundQuestion struct {
		RoundQuestionID string `json:"round_question_id"`
		RoundID         string `json:"round_id"`
		RoundType       string `json:"round_type"`
		Sequence        int    `json:"sequence"`
		Code            string `json:"code"`
		QuestionID      string `json:"question_id,omitempty"`
		Obstacle        bool   `json:"obstacle,omitempty"`
		Revealed        bool   `json:"revealed,omitempty"`
		TargetPlayerID  string `json:"target_player_id,omitempty"`
		PackageValue    int64  `json:"package_value,omitempty"`
		StarOfHope      bool   `json:"star_of_hope,omitempty"`
	}

	ScoreEntry struct {
		EntryID         string    `json:"entry_id"`
		PlayerID        string    `json:"player_id"`
		RoundQuestionID string    `json:"round_question_id"`
		RoundType       string    `json:"round_type"`
		Outcome         string    `json:"outcome"`
		Delta           int64     `json:"delta"`
		Total           int64     `json:"total"`
		CreateTime      time.Time `json:"create_time"`
	}

	Standing struct {
		PlayerID    string `json:"player_id"`
		DisplayName string `json:"display_name"`
		SeatIndex   int    `json:"seat_index"`
		Total       int64  `json:"total"`
	}

	Leaderboard struct {
		MatchID string             `json:"match_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerID string `json:"player_id"`
		Score    int64  `json:"score"`
	}

	DecisionResult struct {
		Delta int64      `json:"delta"`
		Total int64      `json:"total"`
		Entry ScoreEntry `json:"entry"`
	}

	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason,omitempty"`
		Message string `json:"message"`
		// Result is the recorded result of a duplicate decision.
		Result *DecisionResult `json:"result,omitempty"`
	}
)

func toMatch(m domain.Match) Match {
	return Match{
		MatchID:      m.MatchID,
		Name:         m.Name,
		Status:       string(m.Status),
		ScheduledAt:  m.ScheduledAt,
		TournamentID: m.TournamentID,
	}
}

func toPlayer(p domain.Player) Player {
	return Player{
		PlayerID:      p.PlayerID,
		MatchID:       p.MatchID,
		ParticipantID: p.ParticipantID,
		SeatIndex:     p.SeatIndex,
		DisplayName:   p.DisplayName,
		Disqualified:  p.Disqualified,
		Total:         p.Total,
	}
}

func toSession(s domain.LiveSession) Session {
	return Session{
		SessionID:       s.SessionID,
		MatchID:         s.MatchID,
		JoinCode:        s.JoinCode,
		Status:          string(s.Status),
		RoundType:       string(s.RoundType),
		RoundID:         s.RoundID,
		RoundQuestionID: s.RoundQuestionID,
		QuestionState:   string(s.QuestionState),
		TimerDeadline:   s.TimerDeadline,
		Version:         s.Version,
	}
}

func toRoundQuestion(q domain.RoundQuestion) RoundQuestion {
	return RoundQuestion{
		RoundQuestionID: q.RoundQuestionID,
		RoundID:         q.RoundID,
		RoundType:       string(q.RoundType),
		Sequence:        q.Sequence,
		Code:            q.Code,
		QuestionID:      q.QuestionID,
		Obstacle:        q.Obstacle,
		Revealed:        q.Revealed,
		TargetPlayerID:  q.TargetPlayerID,
		PackageValue:    q.PackageValue,
		StarOfHope:      q.StarOfHope,
	}
}

func toScoreEntry(e domain.ScoreEntry) ScoreEntry {
	return ScoreEntry{
		EntryID:         e.EntryID,
		PlayerID:        e.PlayerID,
		RoundQuestionID: e.RoundQuestionID,
		RoundType:       string(e.RoundType),
		Outcome:         string(e.Outcome),
		Delta:           e.Delta,
		Total:           e.Total,
		CreateTime:      e.CreateTime,
	}
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		MatchID: l.MatchID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			PlayerID: e.PlayerID,
			Score:    int64(e.Score),
		})
	}

	return out
}
