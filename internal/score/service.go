// Package score turns host decisions into ledger rows, at most once per player and round question.
package score

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/scoring"
	"github.com/victornm/olympia/internal/session"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/telemetry"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store store.Store
	eb    *event.Bus
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		eb:    c.EventBus,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type ApplyDecisionRequest struct {
	SessionID       string
	PlayerID        string
	RoundQuestionID string
	Outcome         string

	// HostAuthorized tells whether the caller hosts the match of the session.
	// It is decided by the auth layer and trusted as is.
	HostAuthorized bool
}

type ApplyDecisionResponse struct {
	Delta int64
	Total int64
	Entry domain.ScoreEntry
}

// ApplyDecision scores one player's answer to the current question.
//
// A second decision for the same player and round question is never scored: it fails with
// DuplicateDecision and the response holds the result recorded by the first one.
func (s *Service) ApplyDecision(ctx context.Context, req ApplyDecisionRequest) (*ApplyDecisionResponse, error) {
	if !req.HostAuthorized {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host of the match can submit decisions"),
		)
	}

	outcome, err := scoring.ParseOutcome(req.Outcome)
	if err != nil {
		telemetry.ObserveDecision("", "invalid", telemetry.DecisionRejected)
		return nil, err
	}

	var (
		d    decision
		prev *domain.ScoreEntry
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		d, prev, err = s.decide(ctx, tx, req, outcome)
		return err
	})

	switch {
	case prev != nil:
		return s.duplicate(*prev)
	case stderrors.Is(err, store.ErrDuplicate):
		// Lost the race on the unique (round question, player) index.
		e, rerr := s.store.GetScoreEntry(ctx, req.RoundQuestionID, req.PlayerID)
		if rerr != nil {
			return nil, errors.FromStorage(stderrors.Join(err, rerr))
		}
		return s.duplicate(e)
	case err != nil:
		telemetry.ObserveDecision(string(d.session.RoundType), string(outcome), telemetry.DecisionRejected)
		return nil, errors.FromStorage(err)
	}

	telemetry.ObserveDecision(string(d.entry.RoundType), string(outcome), telemetry.DecisionApplied)
	slog.InfoContext(ctx, "score: decision applied",
		"session_id", d.session.SessionID,
		"round_question_id", d.entry.RoundQuestionID,
		"player_id", d.entry.PlayerID,
		"round_type", d.entry.RoundType,
		"outcome", d.entry.Outcome,
		"delta", d.entry.Delta,
		"total", d.entry.Total,
	)

	s.eb.Publish(ctx, domain.EventScoreApplied{Session: d.session, Entry: d.entry})
	if d.sessionChanged {
		s.eb.Publish(ctx, domain.EventSessionUpdated{Session: d.session})
	}

	return &ApplyDecisionResponse{
		Delta: d.entry.Delta,
		Total: d.entry.Total,
		Entry: d.entry,
	}, nil
}

type decision struct {
	session        domain.LiveSession
	entry          domain.ScoreEntry
	sessionChanged bool
}

// decide runs inside the transaction. prev is set when the pair was already scored.
func (s *Service) decide(ctx context.Context, tx store.Tx, req ApplyDecisionRequest, outcome domain.Outcome) (decision, *domain.ScoreEntry, error) {
	// Locking the session first serializes decisions of a session, so a concurrent
	// duplicate sees the committed ledger row below.
	sess, err := tx.LockSession(ctx, req.SessionID)
	if err != nil {
		return decision{}, nil, err
	}
	d := decision{session: sess}

	prev, err := tx.GetScoreEntry(ctx, req.RoundQuestionID, req.PlayerID)
	switch {
	case err == nil && prev.MatchID != sess.MatchID:
		return d, nil, errors.InvalidSessionState("round question %s and player %s are not part of match %s",
			req.RoundQuestionID, req.PlayerID, sess.MatchID)
	case err == nil:
		return d, &prev, nil
	case !stderrors.Is(err, store.ErrNotFound):
		return d, nil, err
	}

	if sess.Status != domain.SessionRunning || sess.QuestionState != domain.QuestionAnswering {
		return d, nil, errors.InvalidSessionState("session %s is %s with question %s, not accepting decisions",
			sess.SessionID, sess.Status, sess.QuestionState)
	}
	if sess.RoundQuestionID != req.RoundQuestionID {
		return d, nil, errors.InvalidSessionState("round question %s is not the current question of session %s",
			req.RoundQuestionID, sess.SessionID)
	}

	rq, err := tx.GetRoundQuestion(ctx, req.RoundQuestionID)
	if err != nil {
		return d, nil, err
	}
	if rq.RoundID != sess.RoundID {
		return d, nil, errors.InvalidSessionState("round question %s does not belong to the current round %s",
			rq.RoundQuestionID, sess.RoundType)
	}

	player, err := tx.LockPlayer(ctx, req.PlayerID)
	if stderrors.Is(err, store.ErrNotFound) || (err == nil && player.MatchID != sess.MatchID) {
		return d, nil, errors.InvalidSessionState("player %s is not seated in match %s", req.PlayerID, sess.MatchID)
	}
	if err != nil {
		return d, nil, err
	}

	in, err := s.ruleInput(ctx, tx, sess, rq, player, outcome)
	if err != nil {
		return d, nil, err
	}

	res, err := scoring.Apply(sess.RoundType, in)
	if err != nil {
		return d, nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return d, nil, fmt.Errorf("generate entry ID: %w", err)
	}

	d.entry = domain.ScoreEntry{
		EntryID:         id.String(),
		MatchID:         sess.MatchID,
		SessionID:       sess.SessionID,
		PlayerID:        player.PlayerID,
		RoundQuestionID: rq.RoundQuestionID,
		RoundType:       sess.RoundType,
		Outcome:         outcome,
		Delta:           res.Delta,
		Total:           res.Next,
		CreateTime:      s.now().UTC(),
	}
	if err := tx.InsertScoreEntry(ctx, d.entry); err != nil {
		return d, nil, err
	}

	// A failed obstacle claim takes the player out of the rest of the obstacle round.
	disqualified := player.Disqualified || (rq.Obstacle && outcome != domain.OutcomeCorrect)
	if err := tx.UpdatePlayerScore(ctx, player.PlayerID, res.Next, disqualified); err != nil {
		return d, nil, err
	}

	if sess.RoundType == domain.RoundVCNV && outcome == domain.OutcomeCorrect && !rq.Revealed {
		rq.Revealed = true
		if err := tx.UpdateRoundQuestion(ctx, rq); err != nil {
			return d, nil, err
		}
	}

	if scoring.ResolvesQuestion(sess.RoundType) {
		next, err := session.Transition(sess, session.Event{Kind: session.EventResolve})
		if err != nil {
			return d, nil, err
		}
		if err := tx.UpdateSession(ctx, &next); err != nil {
			return d, nil, err
		}
		d.session = next
		d.sessionChanged = true
	}

	return d, nil, nil
}

// ruleInput gathers what the round's rule needs beyond the outcome and checks round specific preconditions.
func (s *Service) ruleInput(ctx context.Context, tx store.Tx, sess domain.LiveSession, rq domain.RoundQuestion, player domain.Player, outcome domain.Outcome) (scoring.Input, error) {
	in := scoring.Input{
		Outcome: outcome,
		Current: player.Total,
	}

	switch sess.RoundType {
	case domain.RoundVCNV:
		if player.Disqualified {
			return in, errors.InvalidSessionState("player %s is out of the obstacle round", player.PlayerID)
		}
		if rq.Obstacle {
			opened, err := tx.CountRevealed(ctx, rq.RoundID)
			if err != nil {
				return in, err
			}
			in.Obstacle = true
			in.OpenedCells = decimal.NewFromInt(int64(opened))
		}

	case domain.RoundVuotCNV:
		if outcome == domain.OutcomeCorrect {
			n, err := tx.CountCorrect(ctx, rq.RoundQuestionID)
			if err != nil {
				return in, err
			}
			in.BuzzRank = n + 1
		}

	case domain.RoundVeDich:
		if rq.TargetPlayerID == "" {
			return in, errors.InvalidSessionState("no package is assigned to round question %s", rq.RoundQuestionID)
		}
		in.Wager = scoring.Wager{Value: rq.PackageValue, Star: rq.StarOfHope}

		if player.PlayerID != rq.TargetPlayerID {
			target, err := tx.GetScoreEntry(ctx, rq.RoundQuestionID, rq.TargetPlayerID)
			if stderrors.Is(err, store.ErrNotFound) || (err == nil && target.Outcome == domain.OutcomeCorrect) {
				return in, errors.InvalidSessionState("player %s can only steal after %s missed round question %s",
					player.PlayerID, rq.TargetPlayerID, rq.RoundQuestionID)
			}
			if err != nil {
				return in, err
			}
			in.Steal = true
		}
	}

	return in, nil
}

func (s *Service) duplicate(prev domain.ScoreEntry) (*ApplyDecisionResponse, error) {
	telemetry.ObserveDecision(string(prev.RoundType), string(prev.Outcome), telemetry.DecisionDuplicate)

	return &ApplyDecisionResponse{
		Delta: prev.Delta,
		Total: prev.Total,
		Entry: prev,
	}, errors.DuplicateDecision(prev.RoundQuestionID, prev.PlayerID)
}

type ListStandingsRequest struct {
	MatchID string
}

// ListStandings returns the players of a match by total, highest first. Ties keep seat order.
func (s *Service) ListStandings(ctx context.Context, req ListStandingsRequest) ([]domain.Standing, error) {
	players, err := s.store.ListPlayers(ctx, req.MatchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	standings := make([]domain.Standing, 0, len(players))
	for _, p := range players {
		standings = append(standings, domain.Standing{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			SeatIndex:   p.SeatIndex,
			Total:       p.Total,
		})
	}

	slices.SortStableFunc(standings, func(a, b domain.Standing) int {
		return cmp.Compare(b.Total, a.Total)
	})

	return standings, nil
}

type ListEntriesRequest struct {
	MatchID string
}

// ListEntries returns the ledger of a match in write order.
func (s *Service) ListEntries(ctx context.Context, req ListEntriesRequest) ([]domain.ScoreEntry, error) {
	entries, err := s.store.ListScoreEntries(ctx, req.MatchID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return entries, nil
}
