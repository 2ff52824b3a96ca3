package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/store"
)

type pgTx struct {
	reader
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockSession(ctx context.Context, sessionID string) (domain.LiveSession, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE session_id = $1 FOR UPDATE;`

	s, err := scanSession(t.q.QueryRow(ctx, stmt, sessionID))
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("lock session %s: %w", sessionID, translate(err))
	}

	return s, nil
}

func (t *pgTx) LockPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	const stmt = `SELECT ` + playerColumns + ` FROM players WHERE player_id = $1 FOR UPDATE;`

	p, err := scanPlayer(t.q.QueryRow(ctx, stmt, playerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("lock player %s: %w", playerID, translate(err))
	}

	return p, nil
}

func (t *pgTx) InsertMatch(ctx context.Context, m domain.Match) error {
	const stmt = `INSERT INTO matches (` + matchColumns + `) VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := t.q.Exec(ctx, stmt, m.MatchID, m.Name, string(m.Status), m.ScheduledAt, m.TournamentID, m.CreateTime)
	if err != nil {
		return fmt.Errorf("insert match: %w", translate(err))
	}

	return nil
}

func (t *pgTx) InsertRound(ctx context.Context, r domain.Round) error {
	const stmt = `INSERT INTO rounds (` + roundColumns + `) VALUES ($1, $2, $3, $4);`

	if _, err := t.q.Exec(ctx, stmt, r.RoundID, r.MatchID, string(r.Type), r.Position); err != nil {
		return fmt.Errorf("insert round: %w", translate(err))
	}

	return nil
}

func (t *pgTx) InsertRoundQuestion(ctx context.Context, q domain.RoundQuestion) error {
	const stmt = `INSERT INTO round_questions (` + roundQuestionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := t.q.Exec(ctx, stmt, q.RoundQuestionID, q.RoundID, string(q.RoundType), q.Sequence, q.Code, q.QuestionID,
		q.Obstacle, q.Revealed, q.TargetPlayerID, q.PackageValue, q.StarOfHope, q.QuestionText, q.AnswerText)
	if err != nil {
		return fmt.Errorf("insert round question: %w", translate(err))
	}

	return nil
}

func (t *pgTx) InsertPlayer(ctx context.Context, p domain.Player) error {
	const stmt = `INSERT INTO players (` + playerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := t.q.Exec(ctx, stmt, p.PlayerID, p.MatchID, p.ParticipantID, p.SeatIndex, p.DisplayName, p.Disqualified, p.Total)
	if err != nil {
		return fmt.Errorf("insert player: %w", translate(err))
	}

	return nil
}

func (t *pgTx) InsertSession(ctx context.Context, s domain.LiveSession) error {
	const stmt = `INSERT INTO live_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err := t.q.Exec(ctx, stmt, s.SessionID, s.MatchID, s.JoinCode, string(s.Status), string(s.RoundType), s.RoundID,
		s.RoundQuestionID, string(s.QuestionState), s.TimerDeadline, s.Version, s.UpdateTime)
	if err != nil {
		return fmt.Errorf("insert session: %w", translate(err))
	}

	return nil
}

func (t *pgTx) InsertScoreEntry(ctx context.Context, e domain.ScoreEntry) error {
	const stmt = `INSERT INTO score_entries (` + scoreEntryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := t.q.Exec(ctx, stmt, e.EntryID, e.MatchID, e.SessionID, e.PlayerID, e.RoundQuestionID,
		string(e.RoundType), string(e.Outcome), e.Delta, e.Total, e.CreateTime)
	if err != nil {
		return fmt.Errorf("insert score entry: %w", translate(err))
	}

	return nil
}

func (t *pgTx) UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	const stmt = `UPDATE matches SET status = $2 WHERE match_id = $1;`

	tag, err := t.q.Exec(ctx, stmt, matchID, string(status))
	if err != nil {
		return fmt.Errorf("update match status: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update match status %s: %w", matchID, store.ErrNotFound)
	}

	return nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s *domain.LiveSession) error {
	const stmt = `
UPDATE live_sessions
SET status = $3, round_type = $4, round_id = $5, round_question_id = $6, question_state = $7,
	timer_deadline = $8, version = version + 1, update_time = $9
WHERE session_id = $1 AND version = $2;`

	now := time.Now().UTC()
	tag, err := t.q.Exec(ctx, stmt, s.SessionID, s.Version, string(s.Status), string(s.RoundType), s.RoundID,
		s.RoundQuestionID, string(s.QuestionState), s.TimerDeadline, now)
	if err != nil {
		return fmt.Errorf("update session: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update session %s at version %d: %w", s.SessionID, s.Version, store.ErrConflict)
	}

	s.Version++
	s.UpdateTime = now
	return nil
}

func (t *pgTx) UpdatePlayerScore(ctx context.Context, playerID string, total int64, disqualified bool) error {
	const stmt = `UPDATE players SET total = $2, disqualified = $3 WHERE player_id = $1;`

	tag, err := t.q.Exec(ctx, stmt, playerID, total, disqualified)
	if err != nil {
		return fmt.Errorf("update player score: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update player score %s: %w", playerID, store.ErrNotFound)
	}

	return nil
}

func (t *pgTx) UpdateRoundQuestion(ctx context.Context, q domain.RoundQuestion) error {
	const stmt = `
UPDATE round_questions
SET question_id = $2, revealed = $3, target_player_id = $4, package_value = $5, star_of_hope = $6,
	question_text = $7, answer_text = $8
WHERE round_question_id = $1;`

	tag, err := t.q.Exec(ctx, stmt, q.RoundQuestionID, q.QuestionID, q.Revealed, q.TargetPlayerID,
		q.PackageValue, q.StarOfHope, q.QuestionText, q.AnswerText)
	if err != nil {
		return fmt.Errorf("update round question: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update round question %s: %w", q.RoundQuestionID, store.ErrNotFound)
	}

	return nil
}

func (t *pgTx) ResetRoundQuestions(ctx context.Context, roundQuestionIDs []string) (int64, error) {
	const stmt = `
UPDATE round_questions
SET target_player_id = '', package_value = 0, star_of_hope = false, revealed = false,
	question_text = '', answer_text = ''
WHERE round_question_id = ANY($1);`

	tag, err := t.q.Exec(ctx, stmt, roundQuestionIDs)
	if err != nil {
		return 0, fmt.Errorf("reset round questions: %w", translate(err))
	}

	return tag.RowsAffected(), nil
}
