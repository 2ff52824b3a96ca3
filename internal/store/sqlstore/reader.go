package sqlstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/victornm/olympia/internal/domain"
)

type reader struct {
	db *gorm.DB
}

func (r reader) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	var m matchModel
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Take(&m).Error; err != nil {
		return domain.Match{}, fmt.Errorf("get match %s: %w", matchID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetRound(ctx context.Context, matchID string, t domain.RoundType) (domain.Round, error) {
	var m roundModel
	err := r.db.WithContext(ctx).Where("match_id = ? AND round_type = ?", matchID, string(t)).Take(&m).Error
	if err != nil {
		return domain.Round{}, fmt.Errorf("get round %s/%s: %w", matchID, t, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetRoundByID(ctx context.Context, roundID string) (domain.Round, error) {
	var m roundModel
	if err := r.db.WithContext(ctx).Where("round_id = ?", roundID).Take(&m).Error; err != nil {
		return domain.Round{}, fmt.Errorf("get round %s: %w", roundID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetSession(ctx context.Context, sessionID string) (domain.LiveSession, error) {
	var m sessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&m).Error; err != nil {
		return domain.LiveSession{}, fmt.Errorf("get session %s: %w", sessionID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetSessionByJoinCode(ctx context.Context, code string) (domain.LiveSession, error) {
	var m sessionModel
	if err := r.db.WithContext(ctx).Where("join_code = ?", code).Take(&m).Error; err != nil {
		return domain.LiveSession{}, fmt.Errorf("get session by join code: %w", translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetActiveSession(ctx context.Context, matchID string) (domain.LiveSession, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND status <> ?", matchID, string(domain.SessionEnded)).
		Take(&m).Error
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("get active session of match %s: %w", matchID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	var m playerModel
	if err := r.db.WithContext(ctx).Where("player_id = ?", playerID).Take(&m).Error; err != nil {
		return domain.Player{}, fmt.Errorf("get player %s: %w", playerID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) ListPlayers(ctx context.Context, matchID string) ([]domain.Player, error) {
	var ms []playerModel
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Order("seat_index").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list players: %w", translate(err))
	}

	players := make([]domain.Player, 0, len(ms))
	for _, m := range ms {
		players = append(players, m.toDomain())
	}

	return players, nil
}

func (r reader) GetRoundQuestion(ctx context.Context, roundQuestionID string) (domain.RoundQuestion, error) {
	var m roundQuestionModel
	if err := r.db.WithContext(ctx).Where("round_question_id = ?", roundQuestionID).Take(&m).Error; err != nil {
		return domain.RoundQuestion{}, fmt.Errorf("get round question %s: %w", roundQuestionID, translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) ListRoundQuestions(ctx context.Context, roundID string) ([]domain.RoundQuestion, error) {
	var ms []roundQuestionModel
	if err := r.db.WithContext(ctx).Where("round_id = ?", roundID).Order("sequence").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list round questions: %w", translate(err))
	}

	qs := make([]domain.RoundQuestion, 0, len(ms))
	for _, m := range ms {
		qs = append(qs, m.toDomain())
	}

	return qs, nil
}

func (r reader) GetScoreEntry(ctx context.Context, roundQuestionID, playerID string) (domain.ScoreEntry, error) {
	var m scoreEntryModel
	err := r.db.WithContext(ctx).
		Where("round_question_id = ? AND player_id = ?", roundQuestionID, playerID).
		Take(&m).Error
	if err != nil {
		return domain.ScoreEntry{}, fmt.Errorf("get score entry: %w", translate(err))
	}

	return m.toDomain(), nil
}

func (r reader) ListScoreEntries(ctx context.Context, matchID string) ([]domain.ScoreEntry, error) {
	var ms []scoreEntryModel
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("create_time").Order("entry_id").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list score entries: %w", translate(err))
	}

	entries := make([]domain.ScoreEntry, 0, len(ms))
	for _, m := range ms {
		entries = append(entries, m.toDomain())
	}

	return entries, nil
}

func (r reader) CountCorrect(ctx context.Context, roundQuestionID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&scoreEntryModel{}).
		Where("round_question_id = ? AND outcome = ?", roundQuestionID, string(domain.OutcomeCorrect)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count correct: %w", translate(err))
	}

	return int(n), nil
}

func (r reader) CountRevealed(ctx context.Context, roundID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&roundQuestionModel{}).
		Where("round_id = ? AND revealed = ? AND obstacle = ?", roundID, true, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count revealed: %w", translate(err))
	}

	return int(n), nil
}
