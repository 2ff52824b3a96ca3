package match

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/store"
)

// Seats is the number of players of a match.
const Seats = 4

type Config struct {
	Store store.Store

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateMatchRequest struct {
	Name         string
	ScheduledAt  time.Time
	TournamentID string
}

func (s *Service) CreateMatch(ctx context.Context, req CreateMatchRequest) (*domain.Match, error) {
	if req.Name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("match name is required"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate match ID: %w", err)
	}

	m := &domain.Match{
		MatchID:      id.String(),
		Name:         req.Name,
		Status:       domain.MatchScheduled,
		ScheduledAt:  req.ScheduledAt.UTC(),
		TournamentID: req.TournamentID,
		CreateTime:   s.now().UTC(),
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertMatch(ctx, *m)
	})
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return m, nil
}

type SeatPlayerRequest struct {
	MatchID       string
	ParticipantID string
	SeatIndex     int
	DisplayName   string
}

// SeatPlayer puts a participant on a free seat of a scheduled match.
func (s *Service) SeatPlayer(ctx context.Context, req SeatPlayerRequest) (*domain.Player, error) {
	if req.SeatIndex < 0 || req.SeatIndex >= Seats {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("seat index %d out of range [0, %d)", req.SeatIndex, Seats),
		)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	p := &domain.Player{
		PlayerID:      id.String(),
		MatchID:       req.MatchID,
		ParticipantID: req.ParticipantID,
		SeatIndex:     req.SeatIndex,
		DisplayName:   req.DisplayName,
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.GetMatch(ctx, req.MatchID)
		if err != nil {
			return err
		}
		if m.Status != domain.MatchScheduled {
			return errors.InvalidSessionState("match %s is %s, players can only be seated before it starts", m.MatchID, m.Status)
		}

		return tx.InsertPlayer(ctx, *p)
	})
	if stderrors.Is(err, store.ErrDuplicate) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("seat %d of match %s is taken", req.SeatIndex, req.MatchID),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return p, nil
}

func (s *Service) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return &m, nil
}

// ListPlayers returns the players of a match in seat order.
func (s *Service) ListPlayers(ctx context.Context, matchID string) ([]domain.Player, error) {
	players, err := s.store.ListPlayers(ctx, matchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return players, nil
}
