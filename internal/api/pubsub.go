package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	ScoreApplied struct {
		Session Session    `json:"session"`
		Entry   ScoreEntry `json:"entry"`
	}

	PackagesReset struct {
		MatchID          string   `json:"match_id"`
		RoundID          string   `json:"round_id"`
		RoundQuestionIDs []string `json:"round_question_ids"`
	}
)

// PublishSessionUpdated fans the new session state out to the screens of the session and of the match.
func (a *API) PublishSessionUpdated(ctx context.Context, e domain.EventSessionUpdated) error {
	s := e.Session
	return a.publish(ctx, s.MatchID, s.JoinCode, e.Name(), toSession(s))
}

func (a *API) PublishScoreApplied(ctx context.Context, e domain.EventScoreApplied) error {
	return a.publish(ctx, e.Session.MatchID, e.Session.JoinCode, e.Name(), ScoreApplied{
		Session: toSession(e.Session),
		Entry:   toScoreEntry(e.Entry),
	})
}

func (a *API) PublishPackagesReset(ctx context.Context, e domain.EventPackagesReset) error {
	return a.publish(ctx, e.MatchID, a.joinCodeOf(ctx, e.MatchID), e.Name(), PackagesReset{
		MatchID:          e.MatchID,
		RoundID:          e.RoundID,
		RoundQuestionIDs: e.RoundQuestionIDs,
	})
}

func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard
	return a.publish(ctx, l.MatchID, a.joinCodeOf(ctx, l.MatchID), e.Name(), toLeaderboard(l))
}

// joinCodeOf returns the join code of the active session of a match, or empty when there is none.
func (a *API) joinCodeOf(ctx context.Context, matchID string) string {
	ss, err := a.qss.GetActiveSession(ctx, matchID)
	if err != nil {
		if errors.Convert(err).Code != errors.CodeNotFound {
			slog.WarnContext(ctx, "pubsub: get active session failed", "match_id", matchID, "error", err)
		}
		return ""
	}

	return ss.JoinCode
}

// publish sends the notification to the match channel and, when the match is live, to the session channel.
func (a *API) publish(ctx context.Context, matchID, joinCode, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	channels := []string{fmt.Sprintf("%s:match:%s", a.prefix, matchID)}
	if joinCode != "" {
		channels = append(channels, fmt.Sprintf("%s:session:%s", a.prefix, joinCode))
	}

	var eg errgroup.Group
	for _, ch := range channels {
		eg.Go(func() error {
			if err := a.redis.Publish(ctx, ch, b).Err(); err != nil {
				return fmt.Errorf("pubsub: publish %s to %s: %w", event, ch, err)
			}
			return nil
		})
	}

	return eg.Wait()
}
