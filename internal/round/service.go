// Package round sets up the rounds of a match and manages về đích packages.
package round

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/telemetry"
)

// PackageValues are the package sizes a về đích player may pick.
var PackageValues = []int64{20, 30}

type Config struct {
	Store    store.Store
	EventBus *event.Bus
}

type Service struct {
	store store.Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

type QuestionInput struct {
	Code       string
	QuestionID string
	// Obstacle marks the keyword question, vcnv only.
	Obstacle     bool
	QuestionText string
	AnswerText   string
}

type SetupRoundRequest struct {
	MatchID   string
	Type      domain.RoundType
	Questions []QuestionInput
}

type SetupRoundResponse struct {
	Round     domain.Round
	Questions []domain.RoundQuestion
}

// SetupRound creates the round of the given type and its questions, in the given order.
func (s *Service) SetupRound(ctx context.Context, req SetupRoundRequest) (*SetupRoundResponse, error) {
	if err := validateSetup(req); err != nil {
		return nil, err
	}

	roundID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate round ID: %w", err)
	}

	resp := &SetupRoundResponse{
		Round: domain.Round{
			RoundID:  roundID.String(),
			MatchID:  req.MatchID,
			Type:     req.Type,
			Position: slices.Index(domain.RoundSequence, req.Type),
		},
		Questions: make([]domain.RoundQuestion, 0, len(req.Questions)),
	}

	for i, q := range req.Questions {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate round question ID: %w", err)
		}

		code := q.Code
		if code == "" {
			code = fmt.Sprintf("%s-%d", req.Type, i+1)
		}

		resp.Questions = append(resp.Questions, domain.RoundQuestion{
			RoundQuestionID: id.String(),
			RoundID:         resp.Round.RoundID,
			RoundType:       req.Type,
			Sequence:        i + 1,
			Code:            code,
			QuestionID:      q.QuestionID,
			Obstacle:        q.Obstacle,
			QuestionText:    q.QuestionText,
			AnswerText:      q.AnswerText,
		})
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetMatch(ctx, req.MatchID); err != nil {
			return err
		}

		if err := tx.InsertRound(ctx, resp.Round); err != nil {
			return err
		}

		for _, q := range resp.Questions {
			if err := tx.InsertRoundQuestion(ctx, q); err != nil {
				return err
			}
		}

		return nil
	})
	if stderrors.Is(err, store.ErrDuplicate) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("round %s of match %s is already set up", req.Type, req.MatchID),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	slog.InfoContext(ctx, "round: set up",
		"match_id", req.MatchID,
		"round_type", req.Type,
		"questions", len(resp.Questions),
	)

	return resp, nil
}

func validateSetup(req SetupRoundRequest) error {
	if !req.Type.Valid() {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown round type %q", req.Type))
	}
	if len(req.Questions) == 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("round %s has no questions", req.Type))
	}

	obstacles := 0
	for _, q := range req.Questions {
		if q.Obstacle {
			obstacles++
		}
	}

	switch {
	case req.Type != domain.RoundVCNV && obstacles > 0:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("only the vcnv round has an obstacle question"))
	case obstacles > 1:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("vcnv round has %d obstacle questions, want at most 1", obstacles))
	}

	return nil
}

type AssignPackageRequest struct {
	RoundQuestionID string
	TargetPlayerID  string
	Value           int64
	StarOfHope      bool
}

// AssignPackage binds a về đích question to the player answering it, with the picked value.
func (s *Service) AssignPackage(ctx context.Context, req AssignPackageRequest) (*domain.RoundQuestion, error) {
	if !slices.Contains(PackageValues, req.Value) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("package value %d is not one of %v", req.Value, PackageValues),
		)
	}

	var q domain.RoundQuestion
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if q, err = tx.GetRoundQuestion(ctx, req.RoundQuestionID); err != nil {
			return err
		}
		if q.RoundType != domain.RoundVeDich {
			return errors.InvalidSessionState("round question %s is in round %s, packages are for %s",
				q.RoundQuestionID, q.RoundType, domain.RoundVeDich)
		}

		rd, err := tx.GetRoundByID(ctx, q.RoundID)
		if err != nil {
			return err
		}

		p, err := tx.GetPlayer(ctx, req.TargetPlayerID)
		if stderrors.Is(err, store.ErrNotFound) || (err == nil && p.MatchID != rd.MatchID) {
			return errors.InvalidSessionState("player %s is not seated in match %s", req.TargetPlayerID, rd.MatchID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.GetScoreEntry(ctx, q.RoundQuestionID, q.TargetPlayerID); err == nil {
			return errors.InvalidSessionState("round question %s is already answered, reset it first", q.RoundQuestionID)
		} else if !stderrors.Is(err, store.ErrNotFound) {
			return err
		}

		q.TargetPlayerID = p.PlayerID
		q.PackageValue = req.Value
		q.StarOfHope = req.StarOfHope

		return tx.UpdateRoundQuestion(ctx, q)
	})
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	return &q, nil
}

type ResetPackagesRequest struct {
	RoundQuestionIDs []string
}

type ResetPackagesResponse struct {
	RoundID          string
	RoundQuestionIDs []string
}

// ResetPackages clears the package fields and cached texts of the given round questions.
// Either every row is reset or none is, and the failure is PartialResetFailure.
func (s *Service) ResetPackages(ctx context.Context, req ResetPackagesRequest) (*ResetPackagesResponse, error) {
	ids := compact(req.RoundQuestionIDs)
	if len(ids) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("no round questions to reset"))
	}

	rd, err := s.reset(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPackagesReset{
		MatchID:          rd.MatchID,
		RoundID:          rd.RoundID,
		RoundQuestionIDs: ids,
	})

	return &ResetPackagesResponse{
		RoundID:          rd.RoundID,
		RoundQuestionIDs: ids,
	}, nil
}

type ResetCurrentRoundRequest struct {
	SessionID string
}

// ResetCurrentRound resets every question of the session's current round.
func (s *Service) ResetCurrentRound(ctx context.Context, req ResetCurrentRoundRequest) (*ResetPackagesResponse, error) {
	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}
	if ss.RoundID == "" {
		return nil, errors.InvalidSessionState("session %s is not in a round", ss.SessionID)
	}

	qs, err := s.store.ListRoundQuestions(ctx, ss.RoundID)
	if err != nil {
		return nil, errors.FromStorage(err)
	}

	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.RoundQuestionID)
	}

	return s.ResetPackages(ctx, ResetPackagesRequest{RoundQuestionIDs: ids})
}

// reset clears the rows of one round in a single transaction and returns that round.
func (s *Service) reset(ctx context.Context, ids []string) (rd domain.Round, err error) {
	defer func() {
		telemetry.ObservePackageReset(len(ids), err)
	}()

	var done int64
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		for _, id := range ids {
			q, err := tx.GetRoundQuestion(ctx, id)
			if err != nil {
				return fmt.Errorf("round question %s: %w", id, err)
			}

			if rd.RoundID == "" {
				if rd, err = tx.GetRoundByID(ctx, q.RoundID); err != nil {
					return err
				}
			} else if q.RoundID != rd.RoundID {
				return errors.InvalidSessionState("round question %s is not in round %s, reset one round at a time",
					id, rd.RoundID)
			}
		}

		n, err := tx.ResetRoundQuestions(ctx, ids)
		if err != nil {
			return err
		}

		done = n
		if n != int64(len(ids)) {
			return fmt.Errorf("reset %d of %d round questions: %w", n, len(ids), store.ErrNotFound)
		}

		return nil
	})

	var typed *errors.Error
	switch {
	case err == nil:
	case stderrors.As(err, &typed):
		return domain.Round{}, typed
	default:
		slog.ErrorContext(ctx, "round: reset packages failed, rolled back",
			"round_question_ids", ids,
			"matched", done,
			"error", err,
		)
		return domain.Round{}, errors.PartialResetFailure(int(done), len(ids), err)
	}

	slog.InfoContext(ctx, "round: packages reset", "round_id", rd.RoundID, "round_question_ids", ids)

	return rd, nil
}

// compact drops empty and repeated IDs, keeping the first occurrence order.
func compact(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
