package session

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/telemetry"
)

const (
	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	createAttempts   = 3
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus

	// Now defaults to time.Now.
	Now func() time.Time
	// NewJoinCode defaults to a random 6 character code.
	NewJoinCode func() (string, error)
}

type Service struct {
	store       store.Store
	eb          *event.Bus
	now         func() time.Time
	newJoinCode func() (string, error)
}

func NewService(c Config) *Service {
	s := &Service{
		store:       c.Store,
		eb:          c.EventBus,
		now:         c.Now,
		newJoinCode: c.NewJoinCode,
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.newJoinCode == nil {
		s.newJoinCode = randomJoinCode
	}

	return s
}

// CreateSessionRequest represents a request to open the live session of a match.
type CreateSessionRequest struct {
	MatchID string
}

// CreateSession opens an idle session for a match. A match has at most one session that has not ended.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.LiveSession, error) {
	m, err := s.store.GetMatch(ctx, req.MatchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}
	if m.Status == domain.MatchCompleted {
		return nil, errors.InvalidSessionState("match %s is completed", m.MatchID)
	}

	for attempt := 1; ; attempt++ {
		if active, err := s.store.GetActiveSession(ctx, m.MatchID); err == nil {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("match %s already has session %s", m.MatchID, active.SessionID),
			)
		} else if !stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.FromStorage(err)
		}

		ss, err := s.insertSession(ctx, m.MatchID)
		if err == nil {
			slog.InfoContext(ctx, "session: created",
				"session_id", ss.SessionID,
				"match_id", ss.MatchID,
				"join_code", ss.JoinCode,
			)
			s.eb.Publish(ctx, domain.EventSessionUpdated{Session: *ss})
			return ss, nil
		}

		// A duplicate is either a join code collision or a concurrent create; both are rechecked.
		if !stderrors.Is(err, store.ErrDuplicate) || attempt == createAttempts {
			return nil, errors.FromStorage(err)
		}
	}
}

func (s *Service) insertSession(ctx context.Context, matchID string) (*domain.LiveSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	code, err := s.newJoinCode()
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}

	ss := &domain.LiveSession{
		SessionID:     id.String(),
		MatchID:       matchID,
		JoinCode:      code,
		Status:        domain.SessionIdle,
		QuestionState: domain.QuestionIdle,
		Version:       1,
		UpdateTime:    s.now().UTC(),
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertSession(ctx, *ss)
	})
	if err != nil {
		return nil, err
	}

	return ss, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.LiveSession, error) {
	ss, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return &ss, nil
}

func (s *Service) GetSessionByJoinCode(ctx context.Context, code string) (*domain.LiveSession, error) {
	ss, err := s.store.GetSessionByJoinCode(ctx, code)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return &ss, nil
}

// GetActiveSession returns the session of a match that has not ended yet.
func (s *Service) GetActiveSession(ctx context.Context, matchID string) (*domain.LiveSession, error) {
	ss, err := s.store.GetActiveSession(ctx, matchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return &ss, nil
}

// SessionRequest identifies the session a host action applies to.
type SessionRequest struct {
	SessionID string
}

// Start enters the first round and marks the match live.
func (s *Service) Start(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventStart, func(ctx context.Context, tx store.Tx, cur domain.LiveSession) (Event, error) {
		rd, err := s.roundOf(ctx, tx, cur.MatchID, domain.RoundSequence[0])
		if err != nil {
			return Event{}, err
		}

		return Event{Kind: EventStart, RoundID: rd.RoundID}, nil
	})
}

func (s *Service) Pause(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventPause, nil)
}

func (s *Service) Resume(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventResume, nil)
}

// End terminates the session and completes the match.
func (s *Service) End(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventEnd, nil)
}

type ShowQuestionRequest struct {
	SessionID       string
	RoundQuestionID string
}

// ShowQuestion displays a question of the current round.
func (s *Service) ShowQuestion(ctx context.Context, req ShowQuestionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventShowQuestion, func(ctx context.Context, tx store.Tx, cur domain.LiveSession) (Event, error) {
		q, err := tx.GetRoundQuestion(ctx, req.RoundQuestionID)
		if err != nil {
			return Event{}, err
		}
		if q.RoundID != cur.RoundID {
			return Event{}, errors.InvalidSessionState("round question %s is not part of the current round %s",
				q.RoundQuestionID, cur.RoundType)
		}

		return Event{Kind: EventShowQuestion, RoundQuestionID: q.RoundQuestionID}, nil
	})
}

type OpenAnsweringRequest struct {
	SessionID string
	// Duration sets the informational countdown shown to clients. Zero means no countdown.
	Duration time.Duration
}

// OpenAnswering starts accepting decisions on the shown question.
func (s *Service) OpenAnswering(ctx context.Context, req OpenAnsweringRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventOpenAnswering, s.withDeadline(EventOpenAnswering, req.Duration))
}

// Reopen accepts decisions again on a resolved question, for steals and buzz-in retries.
func (s *Service) Reopen(ctx context.Context, req OpenAnsweringRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventReopen, s.withDeadline(EventReopen, req.Duration))
}

func (s *Service) Resolve(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventResolve, nil)
}

func (s *Service) ClearQuestion(ctx context.Context, req SessionRequest) (*domain.LiveSession, error) {
	return s.apply(ctx, req.SessionID, EventClearQuestion, nil)
}

type AdvanceRoundResponse struct {
	Session *domain.LiveSession
	// RoundType is the round entered, empty when the last round was left and the session ended.
	RoundType domain.RoundType
}

// AdvanceRound moves the session to the next round type. Advancing past the last round ends the session.
func (s *Service) AdvanceRound(ctx context.Context, req SessionRequest) (*AdvanceRoundResponse, error) {
	ss, err := s.apply(ctx, req.SessionID, EventAdvanceRound, func(ctx context.Context, tx store.Tx, cur domain.LiveSession) (Event, error) {
		next, ok := cur.RoundType.Next()
		if !ok || cur.Status != domain.SessionRunning {
			// Transition decides between ending and rejecting.
			return Event{Kind: EventAdvanceRound}, nil
		}

		rd, err := s.roundOf(ctx, tx, cur.MatchID, next)
		if err != nil {
			return Event{}, err
		}

		return Event{Kind: EventAdvanceRound, RoundID: rd.RoundID}, nil
	})
	if err != nil {
		return nil, err
	}

	resp := &AdvanceRoundResponse{Session: ss}
	if ss.Status != domain.SessionEnded {
		resp.RoundType = ss.RoundType
	}

	return resp, nil
}

// eventFunc builds the event from the locked session, for events that need to look up storage first.
type eventFunc func(ctx context.Context, tx store.Tx, cur domain.LiveSession) (Event, error)

func (s *Service) withDeadline(kind EventKind, d time.Duration) eventFunc {
	return func(context.Context, store.Tx, domain.LiveSession) (Event, error) {
		e := Event{Kind: kind}
		if d > 0 {
			deadline := s.now().UTC().Add(d)
			e.Deadline = &deadline
		}

		return e, nil
	}
}

func (s *Service) roundOf(ctx context.Context, tx store.Tx, matchID string, t domain.RoundType) (domain.Round, error) {
	rd, err := tx.GetRound(ctx, matchID, t)
	if stderrors.Is(err, store.ErrNotFound) {
		return domain.Round{}, errors.InvalidSessionState("round %s of match %s is not set up", t, matchID)
	}

	return rd, err
}

// apply runs one host action: lock the session row, transition, write back with a version check.
func (s *Service) apply(ctx context.Context, sessionID string, kind EventKind, build eventFunc) (ss *domain.LiveSession, err error) {
	defer func() {
		telemetry.ObserveTransition(string(kind), err)
	}()

	var next domain.LiveSession
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}

		e := Event{Kind: kind}
		if build != nil {
			if e, err = build(ctx, tx, cur); err != nil {
				return err
			}
		}

		next, err = Transition(cur, e)
		if err != nil {
			return err
		}

		if err := s.syncMatchStatus(ctx, tx, cur, next); err != nil {
			return err
		}

		return tx.UpdateSession(ctx, &next)
	})
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	slog.InfoContext(ctx, "session: transition applied",
		"session_id", next.SessionID,
		"event", kind,
		"status", next.Status,
		"round_type", next.RoundType,
		"question_state", next.QuestionState,
		"version", next.Version,
	)

	s.eb.Publish(ctx, domain.EventSessionUpdated{Session: next})

	return &next, nil
}

// syncMatchStatus keeps the match lifecycle in step with its session.
func (s *Service) syncMatchStatus(ctx context.Context, tx store.Tx, cur, next domain.LiveSession) error {
	switch {
	case cur.Status == domain.SessionIdle && next.Status == domain.SessionRunning:
		return tx.UpdateMatchStatus(ctx, next.MatchID, domain.MatchLive)
	case next.Status == domain.SessionEnded:
		return tx.UpdateMatchStatus(ctx, next.MatchID, domain.MatchCompleted)
	default:
		return nil
	}
}

func randomJoinCode() (string, error) {
	size := big.NewInt(int64(len(joinCodeAlphabet)))
	b := make([]byte, joinCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = joinCodeAlphabet[n.Int64()]
	}

	return string(b), nil
}
