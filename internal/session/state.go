package session

import (
	"time"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
)

type EventKind string

const (
	EventStart         EventKind = "start"
	EventPause         EventKind = "pause"
	EventResume        EventKind = "resume"
	EventEnd           EventKind = "end"
	EventShowQuestion  EventKind = "show_question"
	EventOpenAnswering EventKind = "open_answering"
	EventResolve       EventKind = "resolve"
	EventReopen        EventKind = "reopen"
	EventClearQuestion EventKind = "clear_question"
	EventAdvanceRound  EventKind = "advance_round"
)

// Event is a host action on a live session.
type Event struct {
	Kind EventKind

	// RoundID is the round to enter, for start and advance_round.
	RoundID string
	// RoundQuestionID is the question to show, for show_question.
	RoundQuestionID string
	// Deadline is the informational countdown end, for open_answering.
	Deadline *time.Time
}

// Transition is the only place the pointer fields of a session change.
// It returns the next state or an InvalidSessionState error; s is never modified.
func Transition(s domain.LiveSession, e Event) (domain.LiveSession, error) {
	if s.Status == domain.SessionEnded {
		return s, errors.InvalidSessionState("session %s has ended", s.SessionID)
	}

	next := s
	switch e.Kind {
	case EventStart:
		if s.Status != domain.SessionIdle {
			return s, invalid(s, e)
		}
		next.Status = domain.SessionRunning
		next.RoundType = domain.RoundSequence[0]
		next.RoundID = e.RoundID
		clearQuestion(&next)

	case EventPause:
		if s.Status != domain.SessionRunning {
			return s, invalid(s, e)
		}
		next.Status = domain.SessionPaused

	case EventResume:
		if s.Status != domain.SessionPaused {
			return s, invalid(s, e)
		}
		next.Status = domain.SessionRunning

	case EventEnd:
		next.Status = domain.SessionEnded
		next.TimerDeadline = nil

	case EventShowQuestion:
		if !running(s, domain.QuestionIdle, domain.QuestionResolved) {
			return s, invalid(s, e)
		}
		next.RoundQuestionID = e.RoundQuestionID
		next.QuestionState = domain.QuestionShowing
		next.TimerDeadline = nil

	case EventOpenAnswering:
		if !running(s, domain.QuestionShowing) {
			return s, invalid(s, e)
		}
		next.QuestionState = domain.QuestionAnswering
		next.TimerDeadline = e.Deadline

	case EventResolve:
		if !running(s, domain.QuestionAnswering) {
			return s, invalid(s, e)
		}
		next.QuestionState = domain.QuestionResolved
		next.TimerDeadline = nil

	case EventReopen:
		if !running(s, domain.QuestionResolved) {
			return s, invalid(s, e)
		}
		next.QuestionState = domain.QuestionAnswering
		next.TimerDeadline = e.Deadline

	case EventClearQuestion:
		if !running(s, domain.QuestionShowing, domain.QuestionResolved) {
			return s, invalid(s, e)
		}
		clearQuestion(&next)

	case EventAdvanceRound:
		if !running(s, domain.QuestionIdle, domain.QuestionResolved) {
			return s, invalid(s, e)
		}
		clearQuestion(&next)
		r, ok := s.RoundType.Next()
		if !ok {
			next.Status = domain.SessionEnded
			return next, nil
		}
		next.RoundType = r
		next.RoundID = e.RoundID

	default:
		return s, errors.InvalidSessionState("unknown session event %q", e.Kind)
	}

	return next, nil
}

func running(s domain.LiveSession, states ...domain.QuestionState) bool {
	if s.Status != domain.SessionRunning {
		return false
	}

	for _, q := range states {
		if s.QuestionState == q {
			return true
		}
	}

	return false
}

func clearQuestion(s *domain.LiveSession) {
	s.RoundQuestionID = ""
	s.QuestionState = domain.QuestionIdle
	s.TimerDeadline = nil
}

func invalid(s domain.LiveSession, e Event) error {
	return errors.InvalidSessionState("cannot %s: session %s is %s, question is %s",
		e.Kind, s.SessionID, s.Status, s.QuestionState)
}
