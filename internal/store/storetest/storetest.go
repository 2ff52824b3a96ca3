// Package storetest provides an in-memory store and a seeded match for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/store/sqlstore"
)

const (
	MatchID   = "m1"
	SessionID = "s1"
	JoinCode  = "ABC123"
)

// Players are seated in order, PlayerIDs[i] at seat i.
var PlayerIDs = []string{"p0", "p1", "p2", "p3"}

// RoundQuestionIDs of the seeded match, by round.
var RoundQuestionIDs = map[domain.RoundType][]string{
	domain.RoundKhoiDong: {"kd1", "kd2", "kd3"},
	domain.RoundVCNV:     {"vc1", "vc2", "vc3", "vc4", "vc-key"},
	domain.RoundVuotCNV:  {"vu1", "vu2"},
	domain.RoundVeDich:   {"vd1", "vd2", "vd3"},
}

// ObstacleID is the keyword question of the vcnv round.
const ObstacleID = "vc-key"

// RoundID returns the ID of the seeded round of the given type.
func RoundID(t domain.RoundType) string {
	return MatchID + "-" + string(t)
}

// New opens an empty sqlite database in memory with the schema applied.
func New(t testing.TB) *sqlstore.Store {
	t.Helper()

	ctx := context.Background()
	s, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect: sqlstore.DialectSQLite,
		DSN:     ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))

	return s
}

// NewSeeded is New followed by Seed.
func NewSeeded(t testing.TB) *sqlstore.Store {
	t.Helper()

	s := New(t)
	Seed(t, s)

	return s
}

// Seed writes one scheduled match with four players, the four rounds with their
// questions and an idle session.
func Seed(t testing.TB, s store.Store) {
	t.Helper()

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()

		if err := tx.InsertMatch(ctx, domain.Match{
			MatchID:      MatchID,
			Name:         "Tuần 1 - Tháng 1 - Quý 1",
			Status:       domain.MatchScheduled,
			ScheduledAt:  now,
			TournamentID: "olympia-25",
			CreateTime:   now,
		}); err != nil {
			return err
		}

		for i, id := range PlayerIDs {
			if err := tx.InsertPlayer(ctx, domain.Player{
				PlayerID:      id,
				MatchID:       MatchID,
				ParticipantID: "participant-" + id,
				SeatIndex:     i,
				DisplayName:   "Player " + id,
			}); err != nil {
				return err
			}
		}

		for pos, rt := range domain.RoundSequence {
			if err := tx.InsertRound(ctx, domain.Round{
				RoundID:  RoundID(rt),
				MatchID:  MatchID,
				Type:     rt,
				Position: pos,
			}); err != nil {
				return err
			}

			for seq, id := range RoundQuestionIDs[rt] {
				if err := tx.InsertRoundQuestion(ctx, domain.RoundQuestion{
					RoundQuestionID: id,
					RoundID:         RoundID(rt),
					RoundType:       rt,
					Sequence:        seq + 1,
					Code:            id,
					QuestionID:      "q-" + id,
					Obstacle:        id == ObstacleID,
					QuestionText:    "question " + id,
					AnswerText:      "answer " + id,
				}); err != nil {
					return err
				}
			}
		}

		return tx.InsertSession(ctx, domain.LiveSession{
			SessionID:     SessionID,
			MatchID:       MatchID,
			JoinCode:      JoinCode,
			Status:        domain.SessionIdle,
			QuestionState: domain.QuestionIdle,
			Version:       1,
			UpdateTime:    now,
		})
	})
	require.NoError(t, err)
}

// SetSession overwrites the seeded session through fn.
func SetSession(t testing.TB, s store.Store, fn func(ss *domain.LiveSession)) {
	t.Helper()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		ss, err := tx.LockSession(context.Background(), SessionID)
		if err != nil {
			return err
		}

		fn(&ss)

		return tx.UpdateSession(context.Background(), &ss)
	})
	require.NoError(t, err)
}

// Answering puts the seeded session in the answering state of the given question.
func Answering(t testing.TB, s store.Store, rt domain.RoundType, roundQuestionID string) {
	t.Helper()

	SetSession(t, s, func(ss *domain.LiveSession) {
		ss.Status = domain.SessionRunning
		ss.RoundType = rt
		ss.RoundID = RoundID(rt)
		ss.RoundQuestionID = roundQuestionID
		ss.QuestionState = domain.QuestionAnswering
	})
}

func SetPlayerTotal(t testing.TB, s store.Store, playerID string, total int64) {
	t.Helper()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdatePlayerScore(context.Background(), playerID, total, false)
	})
	require.NoError(t, err)
}

func SetRoundQuestion(t testing.TB, s store.Store, roundQuestionID string, fn func(q *domain.RoundQuestion)) {
	t.Helper()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		q, err := tx.GetRoundQuestion(context.Background(), roundQuestionID)
		if err != nil {
			return err
		}

		fn(&q)

		return tx.UpdateRoundQuestion(context.Background(), q)
	})
	require.NoError(t, err)
}
