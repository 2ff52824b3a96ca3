package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
	"github.com/victornm/olympia/internal/leaderboard"
	"github.com/victornm/olympia/internal/match"
	"github.com/victornm/olympia/internal/round"
	"github.com/victornm/olympia/internal/score"
	"github.com/victornm/olympia/internal/scoring"
	"github.com/victornm/olympia/internal/session"
)

type (
	CreateMatchRequest struct {
		Name         string    `json:"name" binding:"required"`
		ScheduledAt  time.Time `json:"scheduled_at"`
		TournamentID string    `json:"tournament_id"`
	}

	SeatPlayerRequest struct {
		ParticipantID string `json:"participant_id"`
		SeatIndex     int    `json:"seat_index"`
		DisplayName   string `json:"display_name" binding:"required"`
	}

	SetupRoundRequest struct {
		Type      string          `json:"type" binding:"required"`
		Questions []QuestionInput `json:"questions"`
	}

	QuestionInput struct {
		Code         string `json:"code"`
		QuestionID   string `json:"question_id"`
		Obstacle     bool   `json:"obstacle"`
		QuestionText string `json:"question_text"`
		AnswerText   string `json:"answer_text"`
	}

	AssignPackageRequest struct {
		TargetPlayerID string `json:"target_player_id" binding:"required"`
		Value          int64  `json:"value"`
		StarOfHope     bool   `json:"star_of_hope"`
	}

	ResetPackagesRequest struct {
		RoundQuestionIDs []string `json:"round_question_ids"`
	}

	ResetPackagesResponse struct {
		RoundID          string   `json:"round_id"`
		RoundQuestionIDs []string `json:"round_question_ids"`
	}

	ShowQuestionRequest struct {
		RoundQuestionID string `json:"round_question_id" binding:"required"`
	}

	OpenAnsweringRequest struct {
		// DurationSeconds of zero opens answering without a deadline.
		DurationSeconds int `json:"duration_seconds" binding:"gte=0"`
	}

	AdvanceRoundResponse struct {
		Session   Session `json:"session"`
		RoundType string  `json:"round_type,omitempty"`
	}

	ApplyDecisionRequest struct {
		PlayerID        string `json:"player_id" binding:"required"`
		RoundQuestionID string `json:"round_question_id" binding:"required"`
		Outcome         string `json:"outcome"`
	}

	ScorePreview struct {
		Delta int64 `json:"delta"`
		Total int64 `json:"total"`
	}

	VcnvPreview struct {
		Opened string `json:"opened"`
		Score  int64  `json:"score"`
	}
)

func (a *API) CreateMatch(c *gin.Context) {
	var req CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	m, err := a.ms.CreateMatch(c.Request.Context(), match.CreateMatchRequest{
		Name:         req.Name,
		ScheduledAt:  req.ScheduledAt,
		TournamentID: req.TournamentID,
	})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusCreated, toMatch(*m))
}

func (a *API) GetMatch(c *gin.Context) {
	m, err := a.ms.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toMatch(*m))
}

func (a *API) SeatPlayer(c *gin.Context) {
	var req SeatPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	p, err := a.ms.SeatPlayer(c.Request.Context(), match.SeatPlayerRequest{
		MatchID:       c.Param("id"),
		ParticipantID: req.ParticipantID,
		SeatIndex:     req.SeatIndex,
		DisplayName:   req.DisplayName,
	})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPlayer(*p))
}

func (a *API) ListPlayers(c *gin.Context) {
	players, err := a.ms.ListPlayers(c.Request.Context(), c.Param("id"))
	if err != nil {
		render(c, err)
		return
	}

	resp := make([]Player, 0, len(players))
	for _, p := range players {
		resp = append(resp, toPlayer(p))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) ListStandings(c *gin.Context) {
	standings, err := a.ss.ListStandings(c.Request.Context(), score.ListStandingsRequest{MatchID: c.Param("id")})
	if err != nil {
		render(c, err)
		return
	}

	resp := make([]Standing, 0, len(standings))
	for _, st := range standings {
		resp = append(resp, Standing{
			PlayerID:    st.PlayerID,
			DisplayName: st.DisplayName,
			SeatIndex:   st.SeatIndex,
			Total:       st.Total,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) ListEntries(c *gin.Context) {
	entries, err := a.ss.ListEntries(c.Request.Context(), score.ListEntriesRequest{MatchID: c.Param("id")})
	if err != nil {
		render(c, err)
		return
	}

	resp := make([]ScoreEntry, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toScoreEntry(e))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{MatchID: c.Param("id")})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

func (a *API) SetupRound(c *gin.Context) {
	var req SetupRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	in := round.SetupRoundRequest{
		MatchID:   c.Param("id"),
		Type:      domain.RoundType(req.Type),
		Questions: make([]round.QuestionInput, 0, len(req.Questions)),
	}
	for _, q := range req.Questions {
		in.Questions = append(in.Questions, round.QuestionInput{
			Code:         q.Code,
			QuestionID:   q.QuestionID,
			Obstacle:     q.Obstacle,
			QuestionText: q.QuestionText,
			AnswerText:   q.AnswerText,
		})
	}

	resp, err := a.rs.SetupRound(c.Request.Context(), in)
	if err != nil {
		render(c, err)
		return
	}

	out := Round{
		RoundID:   resp.Round.RoundID,
		MatchID:   resp.Round.MatchID,
		Type:      string(resp.Round.Type),
		Position:  resp.Round.Position,
		Questions: make([]RoundQuestion, 0, len(resp.Questions)),
	}
	for _, q := range resp.Questions {
		out.Questions = append(out.Questions, toRoundQuestion(q))
	}

	c.JSON(http.StatusCreated, out)
}

func (a *API) AssignPackage(c *gin.Context) {
	var req AssignPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	q, err := a.rs.AssignPackage(c.Request.Context(), round.AssignPackageRequest{
		RoundQuestionID: c.Param("id"),
		TargetPlayerID:  req.TargetPlayerID,
		Value:           req.Value,
		StarOfHope:      req.StarOfHope,
	})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoundQuestion(*q))
}

func (a *API) ResetPackages(c *gin.Context) {
	var req ResetPackagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	resp, err := a.rs.ResetPackages(c.Request.Context(), round.ResetPackagesRequest{RoundQuestionIDs: req.RoundQuestionIDs})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, ResetPackagesResponse{RoundID: resp.RoundID, RoundQuestionIDs: resp.RoundQuestionIDs})
}

func (a *API) ResetCurrentRound(c *gin.Context) {
	if _, err := a.hostOf(c); err != nil {
		render(c, err)
		return
	}

	resp, err := a.rs.ResetCurrentRound(c.Request.Context(), round.ResetCurrentRoundRequest{SessionID: c.Param("id")})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, ResetPackagesResponse{RoundID: resp.RoundID, RoundQuestionIDs: resp.RoundQuestionIDs})
}

func (a *API) CreateSession(c *gin.Context) {
	matchID := c.Param("id")
	if err := requireHost(c, matchID); err != nil {
		render(c, err)
		return
	}

	ss, err := a.qss.CreateSession(c.Request.Context(), session.CreateSessionRequest{MatchID: matchID})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSession(*ss))
}

func (a *API) GetSession(c *gin.Context) {
	ss, err := a.qss.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(*ss))
}

// Join resolves the join code players and screens connect with.
func (a *API) Join(c *gin.Context) {
	ss, err := a.qss.GetSessionByJoinCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(*ss))
}

type actionFunc func(ctx context.Context, req session.SessionRequest) (*domain.LiveSession, error)

func (a *API) hostAction(do actionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := a.hostOf(c); err != nil {
			render(c, err)
			return
		}

		ss, err := do(c.Request.Context(), session.SessionRequest{SessionID: c.Param("id")})
		if err != nil {
			render(c, err)
			return
		}

		c.JSON(http.StatusOK, toSession(*ss))
	}
}

type timedFunc func(ctx context.Context, req session.OpenAnsweringRequest) (*domain.LiveSession, error)

func (a *API) timedAction(do timedFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OpenAnsweringRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			render(c, invalidBody(err))
			return
		}

		if _, err := a.hostOf(c); err != nil {
			render(c, err)
			return
		}

		ss, err := do(c.Request.Context(), session.OpenAnsweringRequest{
			SessionID: c.Param("id"),
			Duration:  time.Duration(req.DurationSeconds) * time.Second,
		})
		if err != nil {
			render(c, err)
			return
		}

		c.JSON(http.StatusOK, toSession(*ss))
	}
}

func (a *API) ShowQuestion(c *gin.Context) {
	var req ShowQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	if _, err := a.hostOf(c); err != nil {
		render(c, err)
		return
	}

	ss, err := a.qss.ShowQuestion(c.Request.Context(), session.ShowQuestionRequest{
		SessionID:       c.Param("id"),
		RoundQuestionID: req.RoundQuestionID,
	})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(*ss))
}

func (a *API) AdvanceRound(c *gin.Context) {
	if _, err := a.hostOf(c); err != nil {
		render(c, err)
		return
	}

	resp, err := a.qss.AdvanceRound(c.Request.Context(), session.SessionRequest{SessionID: c.Param("id")})
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, AdvanceRoundResponse{
		Session:   toSession(*resp.Session),
		RoundType: string(resp.RoundType),
	})
}

// ApplyDecision records the host's verdict on a player's answer.
// A repeated decision answers 409 with the result recorded the first time.
func (a *API) ApplyDecision(c *gin.Context) {
	var req ApplyDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		render(c, invalidBody(err))
		return
	}

	ss, err := a.qss.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		render(c, err)
		return
	}

	resp, err := a.ss.ApplyDecision(c.Request.Context(), score.ApplyDecisionRequest{
		SessionID:       ss.SessionID,
		PlayerID:        req.PlayerID,
		RoundQuestionID: req.RoundQuestionID,
		Outcome:         req.Outcome,
		HostAuthorized:  requireHost(c, ss.MatchID) == nil,
	})
	if err != nil {
		e := errors.Convert(err)
		body := errorBody(e)
		if resp != nil {
			body.Result = toDecisionResult(resp)
		}
		c.JSON(e.HTTPStatusCode(), body)
		return
	}

	c.JSON(http.StatusOK, toDecisionResult(resp))
}

func toDecisionResult(resp *score.ApplyDecisionResponse) *DecisionResult {
	return &DecisionResult{
		Delta: resp.Delta,
		Total: resp.Total,
		Entry: toScoreEntry(resp.Entry),
	}
}

// PreviewKhoiDong shows what a warm-up decision would do to a total, without recording it.
func (a *API) PreviewKhoiDong(c *gin.Context) {
	var q struct {
		Outcome string `form:"outcome"`
		Current int64  `form:"current" binding:"gte=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		render(c, invalidBody(err))
		return
	}

	res, err := scoring.KhoiDongCommon(domain.Outcome(q.Outcome), q.Current)
	if err != nil {
		render(c, err)
		return
	}

	c.JSON(http.StatusOK, ScorePreview{Delta: res.Delta, Total: res.Next})
}

// PreviewVcnvFinal shows the obstacle value after the given number of revealed cells.
func (a *API) PreviewVcnvFinal(c *gin.Context) {
	raw := c.Query("opened")
	opened, err := decimal.NewFromString(raw)
	if err != nil {
		render(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("opened must be a number, got %q", raw),
			errors.WithCause(err),
		))
		return
	}

	c.JSON(http.StatusOK, VcnvPreview{Opened: opened.String(), Score: scoring.VcnvFinal(opened)})
}
