package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/leaderboard"
	"github.com/victornm/olympia/internal/match"
	"github.com/victornm/olympia/internal/round"
	"github.com/victornm/olympia/internal/score"
	"github.com/victornm/olympia/internal/session"
)

const defaultJoinLimit = 50

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Match        *match.Service
	Session      *session.Service
	Round        *round.Service
	Score        *score.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string

	// HostSecret verifies the HS256 tokens of hosts and admins.
	HostSecret []byte

	// JoinLimit bounds join code lookups per second across all clients, zero uses the default.
	JoinLimit rate.Limit
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ms  *match.Service
	qss *session.Service
	rs  *round.Service
	ss  *score.Service
	ls  *leaderboard.Service

	hostSecret []byte
	joins      *rate.Limiter

	redis  Redis
	prefix string
}

func New(c Config) *API {
	if c.JoinLimit <= 0 {
		c.JoinLimit = defaultJoinLimit
	}

	a := &API{
		ms:         c.Match,
		qss:        c.Session,
		rs:         c.Round,
		ss:         c.Score,
		ls:         c.Leaderboard,
		hostSecret: c.HostSecret,
		joins:      rate.NewLimiter(c.JoinLimit, max(1, 2*int(c.JoinLimit))),
		redis:      c.Redis,
		prefix:     c.PubsubPrefix,
	}

	a.routes(c.Router)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameSessionUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishSessionUpdated(ctx, e.(domain.EventSessionUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameScoreApplied, func(ctx context.Context, e event.Event) error {
		return a.PublishScoreApplied(ctx, e.(domain.EventScoreApplied))
	})
	c.EventBus.Subscribe(domain.EventNamePackagesReset, func(ctx context.Context, e event.Event) error {
		return a.PublishPackagesReset(ctx, e.(domain.EventPackagesReset))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) routes(r gin.IRouter) {
	v1 := r.Group("/v1", a.authenticate)

	// Public reads for players and the audience.
	v1.GET("/matches/:id", a.GetMatch)
	v1.GET("/matches/:id/players", a.ListPlayers)
	v1.GET("/matches/:id/standings", a.ListStandings)
	v1.GET("/matches/:id/entries", a.ListEntries)
	v1.GET("/matches/:id/leaderboard", a.GetLeaderboard)
	v1.GET("/sessions/:id", a.GetSession)
	v1.GET("/join/:code", a.limitJoins, a.Join)
	v1.GET("/scoring/khoi-dong", a.PreviewKhoiDong)
	v1.GET("/scoring/vcnv", a.PreviewVcnvFinal)

	admin := v1.Group("", requireAdmin)
	admin.POST("/matches", a.CreateMatch)
	admin.POST("/matches/:id/players", a.SeatPlayer)
	admin.POST("/matches/:id/rounds", a.SetupRound)
	admin.PUT("/round-questions/:id/package", a.AssignPackage)
	admin.POST("/packages/reset", a.ResetPackages)

	// Host routes check the match of the session in the handler.
	v1.POST("/matches/:id/sessions", a.CreateSession)
	v1.POST("/sessions/:id/start", a.hostAction(a.qss.Start))
	v1.POST("/sessions/:id/pause", a.hostAction(a.qss.Pause))
	v1.POST("/sessions/:id/resume", a.hostAction(a.qss.Resume))
	v1.POST("/sessions/:id/end", a.hostAction(a.qss.End))
	v1.POST("/sessions/:id/advance", a.AdvanceRound)
	v1.POST("/sessions/:id/question/show", a.ShowQuestion)
	v1.POST("/sessions/:id/question/answering", a.timedAction(a.qss.OpenAnswering))
	v1.POST("/sessions/:id/question/reopen", a.timedAction(a.qss.Reopen))
	v1.POST("/sessions/:id/question/resolve", a.hostAction(a.qss.Resolve))
	v1.POST("/sessions/:id/question/clear", a.hostAction(a.qss.ClearQuestion))
	v1.POST("/sessions/:id/decisions", a.ApplyDecision)
	v1.POST("/sessions/:id/packages/reset", a.ResetCurrentRound)
}

// hostOf loads the session in the path and checks that the caller hosts its match.
func (a *API) hostOf(c *gin.Context) (*domain.LiveSession, error) {
	ss, err := a.qss.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}

	if err := requireHost(c, ss.MatchID); err != nil {
		return nil, err
	}

	return ss, nil
}

// limitJoins slows down guessing of join codes.
func (a *API) limitJoins(c *gin.Context) {
	if !a.joins.Allow() {
		abort(c, errors.New(errors.CodeResourceExhausted, errors.WithMessagef("too many join attempts, retry later")))
		return
	}

	c.Next()
}

func render(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c, "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.JSON(e.HTTPStatusCode(), errorBody(e))
}

func abort(c *gin.Context, err error) {
	render(c, err)
	c.Abort()
}

func errorBody(e *errors.Error) Error {
	return Error{
		Code:    codes.Code(e.Code).String(),
		Reason:  string(e.Reason),
		Message: e.Message,
	}
}

func invalidBody(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request body: %v", err),
		errors.WithCause(err),
	)
}
