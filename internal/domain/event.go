package domain

const (
	EventNameSessionUpdated     = "session.updated"
	EventNameScoreApplied       = "score.applied"
	EventNamePackagesReset      = "packages.reset"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionUpdated struct {
	Session LiveSession
}

func (EventSessionUpdated) Name() string { return EventNameSessionUpdated }

type EventScoreApplied struct {
	Session LiveSession
	Entry   ScoreEntry
}

func (EventScoreApplied) Name() string { return EventNameScoreApplied }

type EventPackagesReset struct {
	MatchID          string
	RoundID          string
	RoundQuestionIDs []string
}

func (EventPackagesReset) Name() string { return EventNamePackagesReset }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
