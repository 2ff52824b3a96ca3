package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/olympia/internal/domain"
)

const (
	matchColumns         = `match_id, name, status, scheduled_at, tournament_id, create_time`
	roundColumns         = `round_id, match_id, round_type, position`
	sessionColumns       = `session_id, match_id, join_code, status, round_type, round_id, round_question_id, question_state, timer_deadline, version, update_time`
	playerColumns        = `player_id, match_id, participant_id, seat_index, display_name, disqualified, total`
	roundQuestionColumns = `round_question_id, round_id, round_type, sequence, code, question_id, obstacle, revealed, target_player_id, package_value, star_of_hope, question_text, answer_text`
	scoreEntryColumns    = `entry_id, match_id, session_id, player_id, round_question_id, round_type, outcome, delta, total, create_time`
)

type reader struct {
	q querier
}

func (r reader) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	const stmt = `SELECT ` + matchColumns + ` FROM matches WHERE match_id = $1;`

	m, err := scanMatch(r.q.QueryRow(ctx, stmt, matchID))
	if err != nil {
		return domain.Match{}, fmt.Errorf("get match %s: %w", matchID, translate(err))
	}

	return m, nil
}

func (r reader) GetRound(ctx context.Context, matchID string, t domain.RoundType) (domain.Round, error) {
	const stmt = `SELECT ` + roundColumns + ` FROM rounds WHERE match_id = $1 AND round_type = $2;`

	rd, err := scanRound(r.q.QueryRow(ctx, stmt, matchID, string(t)))
	if err != nil {
		return domain.Round{}, fmt.Errorf("get round %s/%s: %w", matchID, t, translate(err))
	}

	return rd, nil
}

func (r reader) GetRoundByID(ctx context.Context, roundID string) (domain.Round, error) {
	const stmt = `SELECT ` + roundColumns + ` FROM rounds WHERE round_id = $1;`

	rd, err := scanRound(r.q.QueryRow(ctx, stmt, roundID))
	if err != nil {
		return domain.Round{}, fmt.Errorf("get round %s: %w", roundID, translate(err))
	}

	return rd, nil
}

func (r reader) GetSession(ctx context.Context, sessionID string) (domain.LiveSession, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE session_id = $1;`

	s, err := scanSession(r.q.QueryRow(ctx, stmt, sessionID))
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("get session %s: %w", sessionID, translate(err))
	}

	return s, nil
}

func (r reader) GetSessionByJoinCode(ctx context.Context, code string) (domain.LiveSession, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE join_code = $1;`

	s, err := scanSession(r.q.QueryRow(ctx, stmt, code))
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("get session by join code: %w", translate(err))
	}

	return s, nil
}

func (r reader) GetActiveSession(ctx context.Context, matchID string) (domain.LiveSession, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE match_id = $1 AND status <> $2;`

	s, err := scanSession(r.q.QueryRow(ctx, stmt, matchID, string(domain.SessionEnded)))
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("get active session of match %s: %w", matchID, translate(err))
	}

	return s, nil
}

func (r reader) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	const stmt = `SELECT ` + playerColumns + ` FROM players WHERE player_id = $1;`

	p, err := scanPlayer(r.q.QueryRow(ctx, stmt, playerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player %s: %w", playerID, translate(err))
	}

	return p, nil
}

func (r reader) ListPlayers(ctx context.Context, matchID string) ([]domain.Player, error) {
	const stmt = `SELECT ` + playerColumns + ` FROM players WHERE match_id = $1 ORDER BY seat_index;`

	rows, err := r.q.Query(ctx, stmt, matchID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", translate(err))
	}

	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Player, error) {
		return scanPlayer(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list players: %w", translate(err))
	}

	return players, nil
}

func (r reader) GetRoundQuestion(ctx context.Context, roundQuestionID string) (domain.RoundQuestion, error) {
	const stmt = `SELECT ` + roundQuestionColumns + ` FROM round_questions WHERE round_question_id = $1;`

	q, err := scanRoundQuestion(r.q.QueryRow(ctx, stmt, roundQuestionID))
	if err != nil {
		return domain.RoundQuestion{}, fmt.Errorf("get round question %s: %w", roundQuestionID, translate(err))
	}

	return q, nil
}

func (r reader) ListRoundQuestions(ctx context.Context, roundID string) ([]domain.RoundQuestion, error) {
	const stmt = `SELECT ` + roundQuestionColumns + ` FROM round_questions WHERE round_id = $1 ORDER BY sequence;`

	rows, err := r.q.Query(ctx, stmt, roundID)
	if err != nil {
		return nil, fmt.Errorf("list round questions: %w", translate(err))
	}

	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RoundQuestion, error) {
		return scanRoundQuestion(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list round questions: %w", translate(err))
	}

	return qs, nil
}

func (r reader) GetScoreEntry(ctx context.Context, roundQuestionID, playerID string) (domain.ScoreEntry, error) {
	const stmt = `SELECT ` + scoreEntryColumns + ` FROM score_entries WHERE round_question_id = $1 AND player_id = $2;`

	e, err := scanScoreEntry(r.q.QueryRow(ctx, stmt, roundQuestionID, playerID))
	if err != nil {
		return domain.ScoreEntry{}, fmt.Errorf("get score entry: %w", translate(err))
	}

	return e, nil
}

func (r reader) ListScoreEntries(ctx context.Context, matchID string) ([]domain.ScoreEntry, error) {
	const stmt = `SELECT ` + scoreEntryColumns + ` FROM score_entries WHERE match_id = $1 ORDER BY create_time, entry_id;`

	rows, err := r.q.Query(ctx, stmt, matchID)
	if err != nil {
		return nil, fmt.Errorf("list score entries: %w", translate(err))
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ScoreEntry, error) {
		return scanScoreEntry(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list score entries: %w", translate(err))
	}

	return entries, nil
}

func (r reader) CountCorrect(ctx context.Context, roundQuestionID string) (int, error) {
	const stmt = `SELECT count(*) FROM score_entries WHERE round_question_id = $1 AND outcome = $2;`

	var n int64
	if err := r.q.QueryRow(ctx, stmt, roundQuestionID, string(domain.OutcomeCorrect)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count correct: %w", translate(err))
	}

	return int(n), nil
}

func (r reader) CountRevealed(ctx context.Context, roundID string) (int, error) {
	const stmt = `SELECT count(*) FROM round_questions WHERE round_id = $1 AND revealed AND NOT obstacle;`

	var n int64
	if err := r.q.QueryRow(ctx, stmt, roundID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revealed: %w", translate(err))
	}

	return int(n), nil
}

func scanMatch(row pgx.Row) (domain.Match, error) {
	var (
		m      domain.Match
		status string
	)
	err := row.Scan(&m.MatchID, &m.Name, &status, &m.ScheduledAt, &m.TournamentID, &m.CreateTime)
	m.Status = domain.MatchStatus(status)
	return m, err
}

func scanRound(row pgx.Row) (domain.Round, error) {
	var (
		rd    domain.Round
		rtype string
	)
	err := row.Scan(&rd.RoundID, &rd.MatchID, &rtype, &rd.Position)
	rd.Type = domain.RoundType(rtype)
	return rd, err
}

func scanSession(row pgx.Row) (domain.LiveSession, error) {
	var s domain.LiveSession
	var status, roundType, qstate string
	err := row.Scan(&s.SessionID, &s.MatchID, &s.JoinCode, &status, &roundType, &s.RoundID,
		&s.RoundQuestionID, &qstate, &s.TimerDeadline, &s.Version, &s.UpdateTime)
	s.Status = domain.SessionStatus(status)
	s.RoundType = domain.RoundType(roundType)
	s.QuestionState = domain.QuestionState(qstate)
	return s, err
}

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.PlayerID, &p.MatchID, &p.ParticipantID, &p.SeatIndex, &p.DisplayName, &p.Disqualified, &p.Total)
	return p, err
}

func scanRoundQuestion(row pgx.Row) (domain.RoundQuestion, error) {
	var (
		q         domain.RoundQuestion
		roundType string
	)
	err := row.Scan(&q.RoundQuestionID, &q.RoundID, &roundType, &q.Sequence, &q.Code, &q.QuestionID,
		&q.Obstacle, &q.Revealed, &q.TargetPlayerID, &q.PackageValue, &q.StarOfHope, &q.QuestionText, &q.AnswerText)
	q.RoundType = domain.RoundType(roundType)
	return q, err
}

func scanScoreEntry(row pgx.Row) (domain.ScoreEntry, error) {
	var (
		e                  domain.ScoreEntry
		roundType, outcome string
	)
	err := row.Scan(&e.EntryID, &e.MatchID, &e.SessionID, &e.PlayerID, &e.RoundQuestionID,
		&roundType, &outcome, &e.Delta, &e.Total, &e.CreateTime)
	e.RoundType = domain.RoundType(roundType)
	e.Outcome = domain.Outcome(outcome)
	return e, err
}
