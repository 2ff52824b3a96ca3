package sqlstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/store"
)

type gormTx struct {
	reader
	dialect string
}

var _ store.Tx = (*gormTx)(nil)

// forUpdate adds a row lock where the dialect has one. sqlite serializes writers anyway.
func (t *gormTx) forUpdate(ctx context.Context) *gorm.DB {
	db := t.db.WithContext(ctx)
	if t.dialect == DialectPostgres {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	return db
}

func (t *gormTx) LockSession(ctx context.Context, sessionID string) (domain.LiveSession, error) {
	var m sessionModel
	if err := t.forUpdate(ctx).Where("session_id = ?", sessionID).Take(&m).Error; err != nil {
		return domain.LiveSession{}, fmt.Errorf("lock session %s: %w", sessionID, translate(err))
	}

	return m.toDomain(), nil
}

func (t *gormTx) LockPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	var m playerModel
	if err := t.forUpdate(ctx).Where("player_id = ?", playerID).Take(&m).Error; err != nil {
		return domain.Player{}, fmt.Errorf("lock player %s: %w", playerID, translate(err))
	}

	return m.toDomain(), nil
}

func (t *gormTx) InsertMatch(ctx context.Context, m domain.Match) error {
	row := fromMatch(m)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert match: %w", translate(err))
	}

	return nil
}

func (t *gormTx) InsertRound(ctx context.Context, r domain.Round) error {
	row := fromRound(r)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert round: %w", translate(err))
	}

	return nil
}

func (t *gormTx) InsertRoundQuestion(ctx context.Context, q domain.RoundQuestion) error {
	row := fromRoundQuestion(q)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert round question: %w", translate(err))
	}

	return nil
}

func (t *gormTx) InsertPlayer(ctx context.Context, p domain.Player) error {
	row := fromPlayer(p)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert player: %w", translate(err))
	}

	return nil
}

func (t *gormTx) InsertSession(ctx context.Context, s domain.LiveSession) error {
	row := fromSession(s)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert session: %w", translate(err))
	}

	return nil
}

func (t *gormTx) InsertScoreEntry(ctx context.Context, e domain.ScoreEntry) error {
	row := fromScoreEntry(e)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert score entry: %w", translate(err))
	}

	return nil
}

func (t *gormTx) UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	res := t.db.WithContext(ctx).Model(&matchModel{}).
		Where("match_id = ?", matchID).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update match status: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update match status %s: %w", matchID, store.ErrNotFound)
	}

	return nil
}

func (t *gormTx) UpdateSession(ctx context.Context, s *domain.LiveSession) error {
	now := time.Now().UTC()
	res := t.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ? AND version = ?", s.SessionID, s.Version).
		Updates(map[string]any{
			"status":            string(s.Status),
			"round_type":        string(s.RoundType),
			"round_id":          s.RoundID,
			"round_question_id": s.RoundQuestionID,
			"question_state":    string(s.QuestionState),
			"timer_deadline":    s.TimerDeadline,
			"version":           gorm.Expr("version + 1"),
			"update_time":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("update session: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update session %s at version %d: %w", s.SessionID, s.Version, store.ErrConflict)
	}

	s.Version++
	s.UpdateTime = now
	return nil
}

func (t *gormTx) UpdatePlayerScore(ctx context.Context, playerID string, total int64, disqualified bool) error {
	res := t.db.WithContext(ctx).Model(&playerModel{}).
		Where("player_id = ?", playerID).
		Updates(map[string]any{
			"total":        total,
			"disqualified": disqualified,
		})
	if res.Error != nil {
		return fmt.Errorf("update player score: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update player score %s: %w", playerID, store.ErrNotFound)
	}

	return nil
}

func (t *gormTx) UpdateRoundQuestion(ctx context.Context, q domain.RoundQuestion) error {
	res := t.db.WithContext(ctx).Model(&roundQuestionModel{}).
		Where("round_question_id = ?", q.RoundQuestionID).
		Updates(map[string]any{
			"question_id":      q.QuestionID,
			"revealed":         q.Revealed,
			"target_player_id": q.TargetPlayerID,
			"package_value":    q.PackageValue,
			"star_of_hope":     q.StarOfHope,
			"question_text":    q.QuestionText,
			"answer_text":      q.AnswerText,
		})
	if res.Error != nil {
		return fmt.Errorf("update round question: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update round question %s: %w", q.RoundQuestionID, store.ErrNotFound)
	}

	return nil
}

func (t *gormTx) ResetRoundQuestions(ctx context.Context, roundQuestionIDs []string) (int64, error) {
	res := t.db.WithContext(ctx).Model(&roundQuestionModel{}).
		Where("round_question_id IN ?", roundQuestionIDs).
		Updates(map[string]any{
			"target_player_id": "",
			"package_value":    0,
			"star_of_hope":     false,
			"revealed":         false,
			"question_text":    "",
			"answer_text":      "",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset round questions: %w", translate(res.Error))
	}

	return res.RowsAffected, nil
}
