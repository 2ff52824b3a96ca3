//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/olympia/internal/api"
	"github.com/victornm/olympia/internal/domain"
)

const (
	httpAddr = "http://localhost:8080"
	grpcAddr = "localhost:8081"
)

// TestMatch plays a warm-up question of a new match against a running server.
func TestMatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checkHealth(t, ctx)

	var (
		c     = &client{t: t, token: adminToken(t)}
		wg    = new(sync.WaitGroup)
		names = []string{"An", "Bình", "Chi", "Dũng"}
	)

	var m api.Match
	c.do(ctx, http.MethodPost, "/v1/matches", api.CreateMatchRequest{Name: "demo", ScheduledAt: time.Now()}, http.StatusCreated, &m)

	players := make([]api.Player, len(names))
	for i, n := range names {
		c.do(ctx, http.MethodPost, "/v1/matches/"+m.MatchID+"/players", api.SeatPlayerRequest{SeatIndex: i, DisplayName: n}, http.StatusCreated, &players[i])
	}

	var kd api.Round
	for _, rt := range []domain.RoundType{domain.RoundKhoiDong, domain.RoundVCNV, domain.RoundVuotCNV, domain.RoundVeDich} {
		var r api.Round
		c.do(ctx, http.MethodPost, "/v1/matches/"+m.MatchID+"/rounds", api.SetupRoundRequest{
			Type:      string(rt),
			Questions: []api.QuestionInput{{QuestionID: "q1"}, {QuestionID: "q2"}},
		}, http.StatusCreated, &r)
		if rt == domain.RoundKhoiDong {
			kd = r
		}
	}

	var ss api.Session
	c.do(ctx, http.MethodPost, "/v1/matches/"+m.MatchID+"/sessions", nil, http.StatusCreated, &ss)
	t.Logf("Session %s joined with code %s", ss.SessionID, ss.JoinCode)

	subscribe(t, makeRedis(t), wg, "olympia:session:"+ss.JoinCode)

	base := "/v1/sessions/" + ss.SessionID
	c.do(ctx, http.MethodPost, base+"/start", nil, http.StatusOK, nil)
	c.do(ctx, http.MethodPost, base+"/question/show", api.ShowQuestionRequest{RoundQuestionID: kd.Questions[0].RoundQuestionID}, http.StatusOK, nil)
	c.do(ctx, http.MethodPost, base+"/question/answering", api.OpenAnsweringRequest{DurationSeconds: 10}, http.StatusOK, nil)

	// Each decision is sent twice at once, as a double clicking host would.
	var applied atomic.Int32
	var eg errgroup.Group
	for i, p := range players {
		outcome := "correct"
		if i%2 == 1 {
			outcome = "wrong"
		}

		for range 2 {
			eg.Go(func() error {
				status, err := c.post(ctx, base+"/decisions", api.ApplyDecisionRequest{
					PlayerID:        p.PlayerID,
					RoundQuestionID: kd.Questions[0].RoundQuestionID,
					Outcome:         outcome,
				})
				if err != nil {
					return fmt.Errorf("player %s: %w", p.DisplayName, err)
				}

				switch status {
				case http.StatusOK:
					applied.Add(1)
				case http.StatusConflict:
				default:
					return fmt.Errorf("player %s: unexpected status %d", p.DisplayName, status)
				}
				return nil
			})
		}
	}
	require.NoError(t, eg.Wait())
	require.Equal(t, int32(len(players)), applied.Load(), "every player is scored exactly once")

	var standings []api.Standing
	c.do(ctx, http.MethodGet, "/v1/matches/"+m.MatchID+"/standings", nil, http.StatusOK, &standings)
	for _, s := range standings {
		t.Logf("%s: %d", s.DisplayName, s.Total)
	}

	c.do(ctx, http.MethodPost, base+"/end", nil, http.StatusOK, nil)

	time.Sleep(time.Second)
	wg.Wait()
}

type client struct {
	t     *testing.T
	token string
}

func (c *client) post(ctx context.Context, path string, body any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpAddr+path, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, status int, out any) {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, httpAddr+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	require.Equal(c.t, status, resp.StatusCode, "%s %s", method, path)
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func adminToken(t *testing.T) string {
	secret := os.Getenv("AUTH_HOSTSECRET")
	if secret == "" {
		secret = "change-me"
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{
		Role: api.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	return s
}

func checkHealth(t *testing.T, ctx context.Context) {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func subscribe(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, channel string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, channel)
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameLeaderboardUpdated:
				var l api.Leaderboard
				if err := json.Unmarshal(n.Data, &l); err != nil {
					t.Logf("unmarshal leaderboard: %v", err)
					continue
				}

				t.Logf("leaderboard:\n%s", formatLeaderboard(l))

			case domain.EventNameSessionUpdated:
				var s api.Session
				if err := json.Unmarshal(n.Data, &s); err != nil {
					t.Logf("unmarshal session: %v", err)
					continue
				}

				t.Logf("session: status=%s round=%s question=%s", s.Status, s.RoundType, s.QuestionState)
				if s.Status == string(domain.SessionEnded) {
					return
				}
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, channel string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l api.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%s: %d\n", e.PlayerID, e.Score)
	}
	return s
}
