package sqlstore

import (
	"time"

	"github.com/victornm/olympia/internal/domain"
)

type matchModel struct {
	MatchID      string    `gorm:"column:match_id;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Status       string    `gorm:"column:status;not null"`
	ScheduledAt  time.Time `gorm:"column:scheduled_at;not null"`
	TournamentID string    `gorm:"column:tournament_id;not null"`
	CreateTime   time.Time `gorm:"column:create_time;not null"`
}

func (matchModel) TableName() string { return "matches" }

type roundModel struct {
	RoundID   string `gorm:"column:round_id;primaryKey"`
	MatchID   string `gorm:"column:match_id;not null;uniqueIndex:idx_rounds_match_type"`
	RoundType string `gorm:"column:round_type;not null;uniqueIndex:idx_rounds_match_type"`
	Position  int    `gorm:"column:position;not null"`
}

func (roundModel) TableName() string { return "rounds" }

type playerModel struct {
	PlayerID      string `gorm:"column:player_id;primaryKey"`
	MatchID       string `gorm:"column:match_id;not null;uniqueIndex:idx_players_match_seat"`
	ParticipantID string `gorm:"column:participant_id;not null"`
	SeatIndex     int    `gorm:"column:seat_index;not null;uniqueIndex:idx_players_match_seat"`
	DisplayName   string `gorm:"column:display_name;not null"`
	Disqualified  bool   `gorm:"column:disqualified;not null"`
	Total         int64  `gorm:"column:total;not null"`
}

func (playerModel) TableName() string { return "players" }

type roundQuestionModel struct {
	RoundQuestionID string `gorm:"column:round_question_id;primaryKey"`
	RoundID         string `gorm:"column:round_id;not null;uniqueIndex:idx_round_questions_sequence"`
	RoundType       string `gorm:"column:round_type;not null"`
	Sequence        int    `gorm:"column:sequence;not null;uniqueIndex:idx_round_questions_sequence"`
	Code            string `gorm:"column:code;not null"`
	QuestionID      string `gorm:"column:question_id;not null"`
	Obstacle        bool   `gorm:"column:obstacle;not null"`
	Revealed        bool   `gorm:"column:revealed;not null"`
	TargetPlayerID  string `gorm:"column:target_player_id;not null"`
	PackageValue    int64  `gorm:"column:package_value;not null"`
	StarOfHope      bool   `gorm:"column:star_of_hope;not null"`
	QuestionText    string `gorm:"column:question_text;not null"`
	AnswerText      string `gorm:"column:answer_text;not null"`
}

func (roundQuestionModel) TableName() string { return "round_questions" }

type sessionModel struct {
	SessionID       string     `gorm:"column:session_id;primaryKey"`
	MatchID         string     `gorm:"column:match_id;not null;uniqueIndex:idx_live_sessions_active,where:status <> 'ended'"`
	JoinCode        string     `gorm:"column:join_code;not null;uniqueIndex:idx_live_sessions_join_code"`
	Status          string     `gorm:"column:status;not null"`
	RoundType       string     `gorm:"column:round_type;not null"`
	RoundID         string     `gorm:"column:round_id;not null"`
	RoundQuestionID string     `gorm:"column:round_question_id;not null"`
	QuestionState   string     `gorm:"column:question_state;not null"`
	TimerDeadline   *time.Time `gorm:"column:timer_deadline"`
	Version         int64      `gorm:"column:version;not null"`
	UpdateTime      time.Time  `gorm:"column:update_time;not null"`
}

func (sessionModel) TableName() string { return "live_sessions" }

type scoreEntryModel struct {
	EntryID         string    `gorm:"column:entry_id;primaryKey"`
	MatchID         string    `gorm:"column:match_id;not null;index:idx_score_entries_match"`
	SessionID       string    `gorm:"column:session_id;not null"`
	PlayerID        string    `gorm:"column:player_id;not null;uniqueIndex:idx_score_entries_decision"`
	RoundQuestionID string    `gorm:"column:round_question_id;not null;uniqueIndex:idx_score_entries_decision"`
	RoundType       string    `gorm:"column:round_type;not null"`
	Outcome         string    `gorm:"column:outcome;not null"`
	Delta           int64     `gorm:"column:delta;not null"`
	Total           int64     `gorm:"column:total;not null"`
	CreateTime      time.Time `gorm:"column:create_time;not null"`
}

func (scoreEntryModel) TableName() string { return "score_entries" }

func allModels() []any {
	return []any{
		&matchModel{},
		&roundModel{},
		&playerModel{},
		&roundQuestionModel{},
		&sessionModel{},
		&scoreEntryModel{},
	}
}

func (m matchModel) toDomain() domain.Match {
	return domain.Match{
		MatchID:      m.MatchID,
		Name:         m.Name,
		Status:       domain.MatchStatus(m.Status),
		ScheduledAt:  m.ScheduledAt,
		TournamentID: m.TournamentID,
		CreateTime:   m.CreateTime,
	}
}

func fromMatch(m domain.Match) matchModel {
	return matchModel{
		MatchID:      m.MatchID,
		Name:         m.Name,
		Status:       string(m.Status),
		ScheduledAt:  m.ScheduledAt,
		TournamentID: m.TournamentID,
		CreateTime:   m.CreateTime,
	}
}

func (m roundModel) toDomain() domain.Round {
	return domain.Round{
		RoundID:  m.RoundID,
		MatchID:  m.MatchID,
		Type:     domain.RoundType(m.RoundType),
		Position: m.Position,
	}
}

func fromRound(r domain.Round) roundModel {
	return roundModel{
		RoundID:   r.RoundID,
		MatchID:   r.MatchID,
		RoundType: string(r.Type),
		Position:  r.Position,
	}
}

func (m playerModel) toDomain() domain.Player {
	return domain.Player(m)
}

func fromPlayer(p domain.Player) playerModel {
	return playerModel(p)
}

func (m roundQuestionModel) toDomain() domain.RoundQuestion {
	return domain.RoundQuestion{
		RoundQuestionID: m.RoundQuestionID,
		RoundID:         m.RoundID,
		RoundType:       domain.RoundType(m.RoundType),
		Sequence:        m.Sequence,
		Code:            m.Code,
		QuestionID:      m.QuestionID,
		Obstacle:        m.Obstacle,
		Revealed:        m.Revealed,
		TargetPlayerID:  m.TargetPlayerID,
		PackageValue:    m.PackageValue,
		StarOfHope:      m.StarOfHope,
		QuestionText:    m.QuestionText,
		AnswerText:      m.AnswerText,
	}
}

func fromRoundQuestion(q domain.RoundQuestion) roundQuestionModel {
	return roundQuestionModel{
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
		QuestionText:    q.QuestionText,
		AnswerText:      q.AnswerText,
	}
}

func (m sessionModel) toDomain() domain.LiveSession {
	return domain.LiveSession{
		SessionID:       m.SessionID,
		MatchID:         m.MatchID,
		JoinCode:        m.JoinCode,
		Status:          domain.SessionStatus(m.Status),
		RoundType:       domain.RoundType(m.RoundType),
		RoundID:         m.RoundID,
		RoundQuestionID: m.RoundQuestionID,
		QuestionState:   domain.QuestionState(m.QuestionState),
		TimerDeadline:   m.TimerDeadline,
		Version:         m.Version,
		UpdateTime:      m.UpdateTime,
	}
}

func fromSession(s domain.LiveSession) sessionModel {
	return sessionModel{
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
		UpdateTime:      s.UpdateTime,
	}
}

func (m scoreEntryModel) toDomain() domain.ScoreEntry {
	return domain.ScoreEntry{
		EntryID:         m.EntryID,
		MatchID:         m.MatchID,
		SessionID:       m.SessionID,
		PlayerID:        m.PlayerID,
		RoundQuestionID: m.RoundQuestionID,
		RoundType:       domain.RoundType(m.RoundType),
		Outcome:         domain.Outcome(m.Outcome),
		Delta:           m.Delta,
		Total:           m.Total,
		CreateTime:      m.CreateTime,
	}
}

func fromScoreEntry(e domain.ScoreEntry) scoreEntryModel {
	return scoreEntryModel{
		EntryID:         e.EntryID,
		MatchID:         e.MatchID,
		SessionID:       e.SessionID,
		PlayerID:        e.PlayerID,
		RoundQuestionID: e.RoundQuestionID,
		RoundType:       string(e.RoundType),
		Outcome:         string(e.Outcome),
		Delta:           e.Delta,
		Total:           e.Total,
		CreateTime:      e.CreateTime,
	}
}
