package session_test

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
	"github.com/victornm/olympia/internal/session"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/store/storetest"
)

var fixedNow = time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)

func newService(t *testing.T, st store.Store) (*session.Service, *event.Bus) {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return session.NewService(session.Config{
		Store:    st,
		EventBus: eb,
		Now:      func() time.Time { return fixedNow },
	}), eb
}

func TestService_CreateSession(t *testing.T) {
	type outputs struct {
		session *domain.LiveSession
		err     error
	}

	tests := map[string]struct {
		arrange func(t *testing.T, st store.Store) session.CreateSessionRequest
		codes   []string
		assert  func(t *testing.T, st store.Store, out outputs)
	}{
		"match with an active session is rejected": {
			arrange: func(t *testing.T, st store.Store) session.CreateSessionRequest {
				return session.CreateSessionRequest{MatchID: storetest.MatchID}
			},
			assert: func(t *testing.T, st store.Store, out outputs) {
				assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(out.err).Code)
			},
		},

		"new session after the previous one ended": {
			arrange: func(t *testing.T, st store.Store) session.CreateSessionRequest {
				storetest.SetSession(t, st, func(ss *domain.LiveSession) { ss.Status = domain.SessionEnded })
				return session.CreateSessionRequest{MatchID: storetest.MatchID}
			},
			codes: []string{"QWE234"},
			assert: func(t *testing.T, st store.Store, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "QWE234", out.session.JoinCode)
				assert.Equal(t, domain.SessionIdle, out.session.Status)
				assert.Equal(t, domain.QuestionIdle, out.session.QuestionState)

				got, err := st.GetSessionByJoinCode(context.Background(), "QWE234")
				require.NoError(t, err)
				assert.Equal(t, out.session.SessionID, got.SessionID)
			},
		},

		"join code collision is retried": {
			arrange: func(t *testing.T, st store.Store) session.CreateSessionRequest {
				storetest.SetSession(t, st, func(ss *domain.LiveSession) { ss.Status = domain.SessionEnded })
				return session.CreateSessionRequest{MatchID: storetest.MatchID}
			},
			codes: []string{storetest.JoinCode, "ZXC567"},
			assert: func(t *testing.T, st store.Store, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "ZXC567", out.session.JoinCode)
			},
		},

		"unknown match": {
			arrange: func(t *testing.T, st store.Store) session.CreateSessionRequest {
				return session.CreateSessionRequest{MatchID: "nope"}
			},
			assert: func(t *testing.T, st store.Store, out outputs) {
				assert.Equal(t, errors.CodeNotFound, errors.Convert(out.err).Code)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st := storetest.NewSeeded(t)
			req := tt.arrange(t, st)

			eb := event.NewBus()
			defer eb.Stop()

			codes := tt.codes
			svc := session.NewService(session.Config{
				Store:    st,
				EventBus: eb,
				NewJoinCode: func() (string, error) {
					c := codes[0]
					codes = codes[1:]
					return c, nil
				},
			})

			var out outputs
			out.session, out.err = svc.CreateSession(context.Background(), req)
			tt.assert(t, st, out)
		})
	}
}

func TestService_RandomJoinCode(t *testing.T) {
	st := storetest.NewSeeded(t)
	storetest.SetSession(t, st, func(ss *domain.LiveSession) { ss.Status = domain.SessionEnded })
	svc, _ := newService(t, st)

	ss, err := svc.CreateSession(context.Background(), session.CreateSessionRequest{MatchID: storetest.MatchID})
	require.NoError(t, err)
	assert.Regexp(t, `^[A-HJ-NP-Z2-9]{6}$`, ss.JoinCode)
}

func TestService_FullMatch(t *testing.T) {
	st := storetest.NewSeeded(t)
	svc, eb := newService(t, st)
	ctx := context.Background()
	req := session.SessionRequest{SessionID: storetest.SessionID}

	var (
		mu      sync.Mutex
		updates []domain.LiveSession
	)
	eb.Subscribe(domain.EventNameSessionUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, e.(domain.EventSessionUpdated).Session)
		return nil
	})

	ss, err := svc.Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundKhoiDong, ss.RoundType)
	assert.Equal(t, storetest.RoundID(domain.RoundKhoiDong), ss.RoundID)

	m, err := st.GetMatch(ctx, storetest.MatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchLive, m.Status)

	ss, err = svc.ShowQuestion(ctx, session.ShowQuestionRequest{SessionID: storetest.SessionID, RoundQuestionID: "kd1"})
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionShowing, ss.QuestionState)

	ss, err = svc.OpenAnswering(ctx, session.OpenAnsweringRequest{SessionID: storetest.SessionID, Duration: 15 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionAnswering, ss.QuestionState)
	require.NotNil(t, ss.TimerDeadline)
	assert.True(t, fixedNow.Add(15*time.Second).Equal(*ss.TimerDeadline))

	ss, err = svc.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, ss.TimerDeadline)

	ss, err = svc.Reopen(ctx, session.OpenAnsweringRequest{SessionID: storetest.SessionID})
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionAnswering, ss.QuestionState)
	assert.Nil(t, ss.TimerDeadline)

	_, err = svc.Resolve(ctx, req)
	require.NoError(t, err)

	_, err = svc.Pause(ctx, req)
	require.NoError(t, err)
	_, err = svc.ClearQuestion(ctx, req)
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))
	_, err = svc.Resume(ctx, req)
	require.NoError(t, err)

	ss, err = svc.ClearQuestion(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, ss.RoundQuestionID)

	for _, want := range domain.RoundSequence[1:] {
		resp, err := svc.AdvanceRound(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.RoundType)
		assert.Equal(t, storetest.RoundID(want), resp.Session.RoundID)
	}

	resp, err := svc.AdvanceRound(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, resp.RoundType)
	assert.Equal(t, domain.SessionEnded, resp.Session.Status)

	m, err = st.GetMatch(ctx, storetest.MatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchCompleted, m.Status)

	_, err = svc.Resume(ctx, req)
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))

	eb.Stop()
	mu.Lock()
	defer mu.Unlock()
	// Start, show, open, resolve, reopen, resolve, pause, resume, clear, 3 advances and the end.
	assert.Len(t, updates, 13)
}

func TestService_HostActionPreconditions(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, st store.Store)
		act     func(svc *session.Service) error
		reason  errors.Reason
		code    errors.Code
	}{
		"show a question of another round": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.SetSession(t, st, func(ss *domain.LiveSession) {
					ss.Status = domain.SessionRunning
					ss.RoundType = domain.RoundKhoiDong
					ss.RoundID = storetest.RoundID(domain.RoundKhoiDong)
				})
			},
			act: func(svc *session.Service) error {
				_, err := svc.ShowQuestion(context.Background(), session.ShowQuestionRequest{
					SessionID:       storetest.SessionID,
					RoundQuestionID: "vd1",
				})
				return err
			},
			reason: errors.ReasonInvalidSessionState,
			code:   errors.CodeFailedPrecondition,
		},

		"show an unknown question": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.SetSession(t, st, func(ss *domain.LiveSession) {
					ss.Status = domain.SessionRunning
					ss.RoundType = domain.RoundKhoiDong
					ss.RoundID = storetest.RoundID(domain.RoundKhoiDong)
				})
			},
			act: func(svc *session.Service) error {
				_, err := svc.ShowQuestion(context.Background(), session.ShowQuestionRequest{
					SessionID:       storetest.SessionID,
					RoundQuestionID: "nope",
				})
				return err
			},
			code: errors.CodeNotFound,
		},

		"open answering before showing": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.SetSession(t, st, func(ss *domain.LiveSession) {
					ss.Status = domain.SessionRunning
					ss.RoundType = domain.RoundKhoiDong
				})
			},
			act: func(svc *session.Service) error {
				_, err := svc.OpenAnswering(context.Background(), session.OpenAnsweringRequest{SessionID: storetest.SessionID})
				return err
			},
			reason: errors.ReasonInvalidSessionState,
			code:   errors.CodeFailedPrecondition,
		},

		"advance while answering": {
			arrange: func(t *testing.T, st store.Store) {
				storetest.Answering(t, st, domain.RoundKhoiDong, "kd1")
			},
			act: func(svc *session.Service) error {
				_, err := svc.AdvanceRound(context.Background(), session.SessionRequest{SessionID: storetest.SessionID})
				return err
			},
			reason: errors.ReasonInvalidSessionState,
			code:   errors.CodeFailedPrecondition,
		},

		"unknown session": {
			arrange: func(t *testing.T, st store.Store) {},
			act: func(svc *session.Service) error {
				_, err := svc.Start(context.Background(), session.SessionRequest{SessionID: "nope"})
				return err
			},
			code: errors.CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			st := storetest.NewSeeded(t)
			tt.arrange(t, st)
			before, err := st.GetSession(context.Background(), storetest.SessionID)
			require.NoError(t, err)

			svc, _ := newService(t, st)
			err = tt.act(svc)

			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Convert(err).Code)
			if tt.reason != "" {
				assert.True(t, errors.Is(err, tt.reason))
			}

			after, err := st.GetSession(context.Background(), storetest.SessionID)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
		})
	}
}

func TestService_StartRequiresFirstRound(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertMatch(ctx, domain.Match{MatchID: "m2", Status: domain.MatchScheduled}); err != nil {
			return err
		}
		return tx.InsertSession(ctx, domain.LiveSession{
			SessionID:     "s2",
			MatchID:       "m2",
			JoinCode:      "KLM234",
			Status:        domain.SessionIdle,
			QuestionState: domain.QuestionIdle,
			Version:       1,
		})
	}))

	svc, _ := newService(t, st)
	_, err := svc.Start(ctx, session.SessionRequest{SessionID: "s2"})
	assert.True(t, errors.Is(err, errors.ReasonInvalidSessionState))
}
