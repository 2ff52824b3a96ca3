package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/score"
)

const (
	publishInterval = 200 * time.Millisecond
)

// setTotal writes a player's total unless a newer entry of that player is already in.
// KEYS[1] leaderboard, KEYS[2] entry times; ARGV[1] player, ARGV[2] total, ARGV[3] entry time.
var setTotal = redis.NewScript(`
local last = redis.call("HGET", KEYS[2], ARGV[1])
if last and tonumber(last) > tonumber(ARGV[3]) then
	return 0
end
redis.call("HSET", KEYS[2], ARGV[1], ARGV[3])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

type Config struct {
	EventBus *event.Bus
	Score    *score.Service
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	score  *score.Service
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		score:  c.Score,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreApplied, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreApplied))
	})

	return s
}

type GetLeaderboardRequest struct {
	MatchID string
}

// GetLeaderboard returns the leaderboard of a match, highest total first.
// A missing leaderboard is rebuilt from the ledger standings.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.MatchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return s.rebuild(ctx, req.MatchID)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		MatchID: req.MatchID,
		Entries: entries,
	}, nil
}

// rebuild seeds the sorted set from the materialized totals, after a redis flush or a cold start.
func (s *Service) rebuild(ctx context.Context, matchID string) (*domain.Leaderboard, error) {
	standings, err := s.score.ListStandings(ctx, score.ListStandingsRequest{MatchID: matchID})
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}

	l := &domain.Leaderboard{
		MatchID: matchID,
		Entries: make([]domain.LeaderboardEntry, 0, len(standings)),
	}
	if len(standings) == 0 {
		return l, nil
	}

	members := make([]redis.Z, 0, len(standings))
	for _, st := range standings {
		members = append(members, redis.Z{Score: float64(st.Total), Member: st.PlayerID})
		l.Entries = append(l.Entries, domain.LeaderboardEntry{PlayerID: st.PlayerID, Score: float64(st.Total)})
	}

	// NX keeps totals written by concurrent decisions.
	if err := s.redis.ZAddNX(ctx, s.getLeaderboardKey(matchID), members...).Err(); err != nil {
		return nil, fmt.Errorf("rebuild leaderboard: %w", err)
	}

	return l, nil
}

// UpdateLeaderboard overwrites the player's total in the leaderboard of the match.
// Events are handled concurrently, so an entry older than the one already applied is skipped.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreApplied) error {
	entry := e.Entry

	keys := []string{s.getLeaderboardKey(entry.MatchID), s.getEntryTimeKey(entry.MatchID)}
	applied, err := setTotal.Run(ctx, s.redis, keys, entry.PlayerID, entry.Total, entry.CreateTime.UnixMicro()).Int()
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	if applied == 0 {
		slog.DebugContext(ctx, "leaderboard: stale score skipped",
			"match_id", entry.MatchID,
			"player_id", entry.PlayerID,
			"total", entry.Total,
		)
		return nil
	}

	return s.schedulePublishLeaderboard(ctx, entry)
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval and match.
// Buzz-in rounds produce bursts of decisions, most of which would be published for nothing.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, entry domain.ScoreEntry) error {
	// SetNX lets a single instance publish within an interval. Not exact across instances.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(entry.MatchID), entry.CreateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, entry)
}

func (s *Service) publishLeaderboard(ctx context.Context, entry domain.ScoreEntry) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		MatchID: entry.MatchID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: match=%s: %w", entry.MatchID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(entry.MatchID), entry.CreateTime.UnixMilli(), publishInterval).Err()
}

// The keys of setTotal share the match hash tag, so the script runs on redis cluster too.
func (s *Service) getLeaderboardKey(match string) string {
	return fmt.Sprintf("%s:{%s}:leaderboard", s.prefix, match)
}

func (s *Service) getEntryTimeKey(match string) string {
	return fmt.Sprintf("%s:{%s}:leaderboard:entry_time", s.prefix, match)
}

func (s *Service) getLeaderboardTimeKey(match string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, match)
}
