package score_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/score"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/store/storetest"
)

func newService(t *testing.T, st store.Store) (*score.Service, *event.Bus) {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return score.NewService(score.Config{
		Store:    st,
		EventBus: eb,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC) },
	}), eb
}

func decide(playerID, roundQuestionID, outcome string) score.ApplyDecisionRequest {
	return score.ApplyDecisionRequest{
		SessionID:       storetest.SessionID,
		PlayerID:        playerID,
		RoundQuestionID: roundQuestionID,
		Outcome:         outcome,
		HostAuthorized:  true,
	}
}

func TestService_ApplyDecision_KhoiDong(t *testing.T) {
	type outputs struct {
		resp *score.ApplyDecisionResponse
		err  error
	}

	tests := map[string]struct {
		current int64
		outcome string
		assert  func(t *testing.T, st store.Store, out outputs)
	}{
		"correct answer adds 10": {
			current: 25,
			outcome: "correct",
			assert: func(t *testing.T, st store.Store, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int64(10), out.resp.Delta)
				assert.Equal(t, int64(35), out.resp.Total)

				entries, err := st.ListScoreEntries(context.Background(), storetest.MatchID)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.Equal(t, int64(10), entries[0].Delta)
				assert.Equal(t, int64(35), entries[0].Total)
				assert.Equal(t, domain.RoundKhoiDong, entries[0].RoundType)

				p, err := st.GetPlayer(context.Background(), "p0")
				require.NoError(t, err)
				assert.Equal(t, int64(35), p.Total)
			},
		},

		"wrong answer is clamped at zero": {
			current: 3,
			outcome: "wrong",
			assert: func(t *testing.T, st store.Store, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int64(-5), out.resp.Delta)
				assert.Equal(t, int64(0), out.resp.Total)

				p, err := st.GetPlayer(context.Background(), "p0")
				require.NoError(t, err)
				assert.Equal(t, int64(0), p.Total)
			},
		},

		"timeout costs 5": {
			current: 20,
			outcome: "timeout",
			assert: func(t *testing.T, st store.Store, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int64(-5), out.resp.Delta)
				assert.Equal(t, int64(15), out.resp.Total)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st := storetest.NewSeeded(t)
			storetest.SetPlayerTotal(t, st, "p0", tt.current)
			storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")

			svc, _ := newService(t, st)

			var out outputs
			out.resp, out.err = svc.ApplyDecision(context.Background(), decide("p0", "kd1", tt.outcome))
			tt.assert(t, st, out)

			if out.err == nil {
				ss, err := st.GetSession(context.Background(), storetest.SessionID)
				require.NoError(t, err)
				assert.Equal(t, domain.QuestionResolved, ss.QuestionState)
			}
		})
	}
}

func TestService_ApplyDecision_IsIdempotent(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.SetPlayerTotal(t, st, "p0", 25)
	storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
	svc, _ := newService(t, st)
	ctx := context.Background()

	first, err := svc.ApplyDecision(ctx, decide("p0", "kd1", "correct"))
	require.NoError(t, err)

	// The question was resolved by the first call; a retry still reports the recorded result.
	second, err := svc.ApplyDecision(ctx, decide("p0", "kd1", "correct"))
	assert.True(t, errors.Is(err, errors.ReasonDuplicateDecision))
	assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
	require.NotNil(t, second)
	assert.Equal(t, first.Entry.EntryID, second.Entry.EntryID)
	assert.Equal(t, int64(35), second.Total)

	// Even with the question open again.
	storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
	_, err = svc.ApplyDecision(ctx, decide("p0", "kd1", "wrong"))
	assert.True(t, errors.Is(err, errors.ReasonDuplicateDecision))

	entries, err := st.ListScoreEntries(ctx, storetest.MatchID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	p, err := st.GetPlayer(ctx, "p0")
	require.NoError(t, err)
	assert.Equal(t, int64(35), p.Total)
}

func TestService_ApplyDecision_EntryOfAnotherMatchIsNotReturned(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
	svc, _ := newService(t, st)
	ctx := context.Background()

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertMatch(ctx, domain.Match{MatchID: "m2", Name: "other", Status: domain.MatchLive}); err != nil {
			return err
		}
		if err := tx.InsertRound(ctx, domain.Round{RoundID: "m2-kd", MatchID: "m2", Type: domain.RoundKhoiDong}); err != nil {
			return err
		}
		if err := tx.InsertRoundQuestion(ctx, domain.RoundQuestion{
			RoundQuestionID: "m2-kd1", RoundID: "m2-kd", RoundType: domain.RoundKhoiDong, Sequence: 1, Code: "m2-kd1",
		}); err != nil {
			return err
		}
		if err := tx.InsertPlayer(ctx, domain.Player{PlayerID: "m2-p0", MatchID: "m2", DisplayName: "other"}); err != nil {
			return err
		}
		return tx.InsertScoreEntry(ctx, domain.ScoreEntry{
			EntryID: "e-m2", MatchID: "m2", PlayerID: "m2-p0", RoundQuestionID: "m2-kd1",
			RoundType: domain.RoundKhoiDong, Outcome: domain.OutcomeCorrect, Delta: 10, Total: 90,
		})
	}))

	resp, err := svc.ApplyDecision(ctx, decide("m2-p0", "m2-kd1", "correct"))
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))
	assert.Nil(t, resp)
}

func TestService_ApplyDecision_ConcurrentDecisionsCommitOnce(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.SetPlayerTotal(t, st, "p0", 25)
	storetest.Answering(t, st, domain.RoundVuotCNV, "vu1")
	svc, _ := newService(t, st)

	outcomes := []string{"correct", "wrong", "timeout", "correct", "wrong", "correct"}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		applied    int
		duplicates int
	)
	for _, o := range outcomes {
		wg.Add(1)
		go func(o string) {
			defer wg.Done()

			_, err := svc.ApplyDecision(context.Background(), decide("p0", "vu1", o))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, errors.ReasonDuplicateDecision):
				duplicates++
			}
		}(o)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, len(outcomes)-1, duplicates)

	entries, err := st.ListScoreEntries(context.Background(), storetest.MatchID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	p, err := st.GetPlayer(context.Background(), "p0")
	require.NoError(t, err)
	assert.Equal(t, entries[0].Total, p.Total)
}

func TestService_ApplyDecision_Preconditions(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, st store.Store)
		req     score.ApplyDecisionRequest
		code    errors.Code
		reason  errors.Reason
	}{
		"caller is not the host": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
			},
			req: func() score.ApplyDecisionRequest {
				r := decide("p0", "kd1", "correct")
				r.HostAuthorized = false
				return r
			}(),
			code: errors.CodePermissionDenied,
		},

		"unknown outcome": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
			},
			req:    decide("p0", "kd1", "maybe"),
			code:   errors.CodeInvalidArgument,
			reason: errors.ReasonInvalidOutcome,
		},

		"session not started": {
			arrange: func(t *testing.T, st store.Store) {},
			req:     decide("p0", "kd1", "correct"),
			code:    errors.CodeFailedPrecondition,
			reason:  errors.ReasonInvalidSessionState,
		},

		"session paused": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
				storetest.SetSession(t, st, func(ss *domain.LiveSession) { ss.Status = domain.SessionPaused })
			},
			req:    decide("p0", "kd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"question only showing": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
				storetest.SetSession(t, st, func(ss *domain.LiveSession) { ss.QuestionState = domain.QuestionShowing })
			},
			req:    decide("p0", "kd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"not the current question": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
			},
			req:    decide("p0", "kd2", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"question of another round": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "vd1")
			},
			req:    decide("p0", "vd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"player not seated": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
			},
			req:    decide("p9", "kd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"unknown session": {
			arrange: func(t *testing.T, st store.Store) {},
			req: func() score.ApplyDecisionRequest {
				r := decide("p0", "kd1", "correct")
				r.SessionID = "nope"
				return r
			}(),
			code: errors.CodeNotFound,
		},

		"ve dich question without a package": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundVeDich, "vd1")
			},
			req:    decide("p0", "vd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},

		"steal before the target answered": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.SetRoundQuestion(t, st, "vd1", func(q *domain.RoundQuestion) {
					q.TargetPlayerID = "p0"
					q.PackageValue = 20
				})
				storetest.Answering(t, st, domain.RoundVeDich, "vd1")
			},
			req:    decide("p1", "vd1", "correct"),
			code:   errors.CodeFailedPrecondition,
			reason: errors.ReasonInvalidSessionState,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st := storetest.NewSeeded(t)
			storetest.SetPlayerTotal(t, st, "p0", 40)
			tt.arrange(t, st)

			ctx := context.Background()
			before, err := st.GetSession(ctx, storetest.SessionID)
			require.NoError(t, err)

			svc, _ := newService(t, st)
			resp, err := svc.ApplyDecision(ctx, tt.req)

			assert.Nil(t, resp)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Convert(err).Code)
			if tt.reason != "" {
				assert.True(t, errors.Is(err, tt.reason))
			}

			entries, err := st.ListScoreEntries(ctx, storetest.MatchID)
			require.NoError(t, err)
			assert.Empty(t, entries)

			p, err := st.GetPlayer(ctx, "p0")
			require.NoError(t, err)
			assert.Equal(t, int64(40), p.Total)

			after, err := st.GetSession(ctx, storetest.SessionID)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
		})
	}
}

func TestService_ApplyDecision_Obstacle(t *testing.T) {
	st := storetest.NewSeeded(t)
	svc, _ := newService(t, st)
	ctx := context.Background()

	// Two cells are opened by correct row answers, one row is missed.
	for _, tc := range []struct {
		rq, player, outcome string
	}{
		{"vc1", "p0", "correct"},
		{"vc2", "p1", "wrong"},
		{"vc3", "p1", "correct"},
	} {
		storetest.Answering(t, st, domain.RoundVCNV, tc.rq)
		_, err := svc.ApplyDecision(ctx, decide(tc.player, tc.rq, tc.outcome))
		require.NoError(t, err)
	}

	opened, err := st.CountRevealed(ctx, storetest.RoundID(domain.RoundVCNV))
	require.NoError(t, err)
	assert.Equal(t, 2, opened)

	storetest.Answering(t, st, domain.RoundVCNV, storetest.ObstacleID)

	resp, err := svc.ApplyDecision(ctx, decide("p3", storetest.ObstacleID, "wrong"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Delta)

	p3, err := st.GetPlayer(ctx, "p3")
	require.NoError(t, err)
	assert.True(t, p3.Disqualified)

	storetest.Answering(t, st, domain.RoundVCNV, storetest.ObstacleID)
	resp, err = svc.ApplyDecision(ctx, decide("p2", storetest.ObstacleID, "correct"))
	require.NoError(t, err)
	assert.Equal(t, int64(40), resp.Delta)
	assert.Equal(t, int64(40), resp.Total)

	// The disqualified player cannot answer in this round any more.
	storetest.Answering(t, st, domain.RoundVCNV, "vc4")
	_, err = svc.ApplyDecision(ctx, decide("p3", "vc4", "correct"))
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))
}

func TestService_ApplyDecision_BuzzIn(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.Answering(t, st, domain.RoundVuotCNV, "vu1")
	svc, _ := newService(t, st)
	ctx := context.Background()

	tests := []struct {
		player  string
		outcome string
		delta   int64
	}{
		{"p2", "correct", 40},
		{"p0", "wrong", 0},
		{"p3", "correct", 30},
		{"p1", "correct", 20},
	}

	for _, tt := range tests {
		resp, err := svc.ApplyDecision(ctx, decide(tt.player, "vu1", tt.outcome))
		require.NoError(t, err, tt.player)
		assert.Equal(t, tt.delta, resp.Delta, tt.player)
	}

	ss, err := st.GetSession(ctx, storetest.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionAnswering, ss.QuestionState)
}

func TestService_ApplyDecision_VeDich(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.SetPlayerTotal(t, st, "p0", 50)
	storetest.SetPlayerTotal(t, st, "p1", 10)
	storetest.SetRoundQuestion(t, st, "vd1", func(q *domain.RoundQuestion) {
		q.TargetPlayerID = "p0"
		q.PackageValue = 30
		q.StarOfHope = true
	})
	storetest.SetRoundQuestion(t, st, "vd2", func(q *domain.RoundQuestion) {
		q.TargetPlayerID = "p0"
		q.PackageValue = 20
		q.StarOfHope = true
	})
	svc, _ := newService(t, st)
	ctx := context.Background()

	storetest.Answering(t, st, domain.RoundVeDich, "vd1")
	resp, err := svc.ApplyDecision(ctx, decide("p0", "vd1", "wrong"))
	require.NoError(t, err)
	assert.Equal(t, int64(-30), resp.Delta)
	assert.Equal(t, int64(20), resp.Total)

	// The host reopens the question for a steal.
	storetest.Answering(t, st, domain.RoundVeDich, "vd1")
	resp, err = svc.ApplyDecision(ctx, decide("p1", "vd1", "correct"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), resp.Delta)
	assert.Equal(t, int64(40), resp.Total)

	storetest.Answering(t, st, domain.RoundVeDich, "vd2")
	resp, err = svc.ApplyDecision(ctx, decide("p0", "vd2", "correct"))
	require.NoError(t, err)
	assert.Equal(t, int64(40), resp.Delta)
	assert.Equal(t, int64(60), resp.Total)

	// Nothing to steal after a correct answer.
	storetest.Answering(t, st, domain.RoundVeDich, "vd2")
	_, err = svc.ApplyDecision(ctx, decide("p1", "vd2", "correct"))
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))
}

func TestService_ApplyDecision_PublishesEvents(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
	svc, eb := newService(t, st)

	var (
		mu     sync.Mutex
		events []string
	)
	for _, name := range []string{domain.EventNameScoreApplied, domain.EventNameSessionUpdated} {
		eb.Subscribe(name, func(ctx context.Context, e event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e.Name())
			return nil
		})
	}

	_, err := svc.ApplyDecision(context.Background(), decide("p1", "kd1", "correct"))
	require.NoError(t, err)

	_, err = svc.ApplyDecision(context.Background(), decide("p1", "kd1", "correct"))
	require.Error(t, err)

	eb.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{domain.EventNameScoreApplied, domain.EventNameSessionUpdated}, events)
}

func TestService_ListStandings(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.SetPlayerTotal(t, st, "p0", 20)
	storetest.SetPlayerTotal(t, st, "p1", 70)
	storetest.SetPlayerTotal(t, st, "p2", 20)
	storetest.SetPlayerTotal(t, st, "p3", 45)
	svc, _ := newService(t, st)

	standings, err := svc.ListStandings(context.Background(), score.ListStandingsRequest{MatchID: storetest.MatchID})
	require.NoError(t, err)

	var order []string
	for _, s := range standings {
		order = append(order, s.PlayerID)
	}
	assert.Equal(t, []string{"p1", "p3", "p0", "p2"}, order)
}
