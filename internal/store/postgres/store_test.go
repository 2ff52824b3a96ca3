//go:build integration_test

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/score"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/store/postgres"
	"github.com/victornm/olympia/internal/store/storetest"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// makeStore connects to the postgres of the compose stack and seeds an empty schema.
func makeStore(t *testing.T) *postgres.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := postgres.Open(ctx, postgres.Config{
		Addr:     getenv("STORE_POSTGRES_ADDR", "localhost:5432"),
		User:     getenv("STORE_POSTGRES_USER", "olympia"),
		Pass:     getenv("STORE_POSTGRES_PASS", "olympia"),
		Name:     getenv("STORE_POSTGRES_NAME", "olympia"),
		MaxConns: 16,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.EnsureSchema(ctx))
	truncate(t, ctx)
	storetest.Seed(t, s)

	return s
}

func truncate(t *testing.T, ctx context.Context) {
	pool, err := pgxpool.New(ctx, "postgres://"+getenv("STORE_POSTGRES_USER", "olympia")+":"+
		getenv("STORE_POSTGRES_PASS", "olympia")+"@"+getenv("STORE_POSTGRES_ADDR", "localhost:5432")+"/"+
		getenv("STORE_POSTGRES_NAME", "olympia"))
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `TRUNCATE score_entries, live_sessions, round_questions, players, rounds, matches`)
	require.NoError(t, err)
}

func TestStore_ConcurrentDecisions(t *testing.T) {
	s := makeStore(t)
	storetest.Answering(t, s, domain.RoundKhoiDong, "kd1")

	eb := event.NewBus()
	t.Cleanup(eb.Stop)
	svc := score.NewService(score.Config{Store: s, EventBus: eb})

	const attempts = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied = make(map[string]int)
		dup     = make(map[string]int)
	)
	for _, p := range storetest.PlayerIDs {
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, err := svc.ApplyDecision(context.Background(), score.ApplyDecisionRequest{
					SessionID:       storetest.SessionID,
					PlayerID:        p,
					RoundQuestionID: "kd1",
					Outcome:         "correct",
					HostAuthorized:  true,
				})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					applied[p]++
				case errors.Is(err, errors.ReasonDuplicateDecision):
					dup[p]++
				default:
					t.Errorf("player %s: %v", p, err)
				}
			}()
		}
	}
	wg.Wait()

	for _, p := range storetest.PlayerIDs {
		assert.Equal(t, 1, applied[p], p)
		assert.Equal(t, attempts-1, dup[p], p)

		player, err := s.GetPlayer(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, int64(10), player.Total, p)
	}

	entries, err := s.ListScoreEntries(context.Background(), storetest.MatchID)
	require.NoError(t, err)
	assert.Len(t, entries, len(storetest.PlayerIDs))
}

func TestStore_UpdateSessionComparesVersion(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	stale, err := s.GetSession(ctx, storetest.SessionID)
	require.NoError(t, err)

	fresh := stale
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		fresh.Status = domain.SessionRunning
		return tx.UpdateSession(ctx, &fresh)
	}))

	err = s.InTx(ctx, func(tx store.Tx) error {
		stale.Status = domain.SessionEnded
		return tx.UpdateSession(ctx, &stale)
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestStore_ResetRoundQuestionsRollsBack(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	storetest.SetRoundQuestion(t, s, "vd1", func(q *domain.RoundQuestion) {
		q.TargetPlayerID = "p0"
		q.PackageValue = 20
	})

	err := s.InTx(ctx, func(tx store.Tx) error {
		n, err := tx.ResetRoundQuestions(ctx, []string{"vd1", "vd-missing"})
		if err != nil {
			return err
		}
		if n != 2 {
			return store.ErrNotFound
		}
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	q, err := s.GetRoundQuestion(ctx, "vd1")
	require.NoError(t, err)
	assert.Equal(t, "p0", q.TargetPlayerID)
	assert.Equal(t, int64(20), q.PackageValue)
}
