// Package store defines the storage contract of the live-match engine.
//
// Concurrency control lives entirely in the storage layer: uniqueness constraints,
// row locks taken inside transactions and version compare-and-swap. Implementations
// must not rely on in-process locking since several server instances share a database.
package store

import (
	"context"
	"errors"

	"github.com/victornm/olympia/internal/domain"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrDuplicate   = errors.New("store: unique constraint violated")
	ErrConflict    = errors.New("store: concurrent update")
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the entry point of a storage backend. Reads outside InTx see committed data.
type Store interface {
	Reader

	// InTx runs fn in one transaction. The transaction commits when fn returns nil
	// and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

type Reader interface {
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	GetRound(ctx context.Context, matchID string, t domain.RoundType) (domain.Round, error)
	GetRoundByID(ctx context.Context, roundID string) (domain.Round, error)
	GetSession(ctx context.Context, sessionID string) (domain.LiveSession, error)
	GetSessionByJoinCode(ctx context.Context, code string) (domain.LiveSession, error)
	// GetActiveSession returns the session of the match that has not ended.
	GetActiveSession(ctx context.Context, matchID string) (domain.LiveSession, error)
	GetPlayer(ctx context.Context, playerID string) (domain.Player, error)
	ListPlayers(ctx context.Context, matchID string) ([]domain.Player, error)
	GetRoundQuestion(ctx context.Context, roundQuestionID string) (domain.RoundQuestion, error)
	ListRoundQuestions(ctx context.Context, roundID string) ([]domain.RoundQuestion, error)
	GetScoreEntry(ctx context.Context, roundQuestionID, playerID string) (domain.ScoreEntry, error)
	ListScoreEntries(ctx context.Context, matchID string) ([]domain.ScoreEntry, error)
	CountCorrect(ctx context.Context, roundQuestionID string) (int, error)
	CountRevealed(ctx context.Context, roundID string) (int, error)
}

// Tx is a unit of work. Lock* methods hold a row lock until the transaction ends.
type Tx interface {
	Reader

	LockSession(ctx context.Context, sessionID string) (domain.LiveSession, error)
	LockPlayer(ctx context.Context, playerID string) (domain.Player, error)

	InsertMatch(ctx context.Context, m domain.Match) error
	InsertRound(ctx context.Context, r domain.Round) error
	InsertRoundQuestion(ctx context.Context, q domain.RoundQuestion) error
	InsertPlayer(ctx context.Context, p domain.Player) error
	InsertSession(ctx context.Context, s domain.LiveSession) error
	// InsertScoreEntry fails with ErrDuplicate when the (round question, player) pair exists.
	InsertScoreEntry(ctx context.Context, e domain.ScoreEntry) error

	UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error
	// UpdateSession writes s if its stored version still equals s.Version, then bumps
	// s.Version. ErrConflict is returned when another writer got there first.
	UpdateSession(ctx context.Context, s *domain.LiveSession) error
	UpdatePlayerScore(ctx context.Context, playerID string, total int64, disqualified bool) error
	UpdateRoundQuestion(ctx context.Context, q domain.RoundQuestion) error
	// ResetRoundQuestions clears the package fields of the given rows and reports
	// how many rows it touched.
	ResetRoundQuestions(ctx context.Context, roundQuestionIDs []string) (int64, error)
}
