// Package scoring holds the pure score rules of each round. Nothing here does I/O.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
)

const (
	khoiDongCorrect = 10
	khoiDongPenalty = -5

	vcnvRowCorrect  = 10
	vcnvFinalBase   = 60
	vcnvCellPenalty = 10

	buzzFloor = 10
)

// buzzPoints indexed by rank-1 of the correct answer.
var buzzPoints = []int64{40, 30, 20, 10}

// Result is the nominal delta of a decision and the clamped total it leads to.
type Result struct {
	Delta int64
	Next  int64
}

// ParseOutcome validates a raw outcome value.
func ParseOutcome(s string) (domain.Outcome, error) {
	switch o := domain.Outcome(s); o {
	case domain.OutcomeCorrect, domain.OutcomeWrong, domain.OutcomeTimeout:
		return o, nil
	default:
		return "", errors.InvalidOutcome(s)
	}
}

// KhoiDongCommon scores the shared warm-up questions: +10 on correct, -5 otherwise.
// The total never drops below zero but Delta is always the nominal -5.
func KhoiDongCommon(o domain.Outcome, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	if o == domain.OutcomeCorrect {
		return apply(current, khoiDongCorrect), nil
	}

	return apply(current, khoiDongPenalty), nil
}

// VcnvFinal is the value of solving the obstacle keyword after opened cells were revealed.
// Negative counts are treated as zero and fractional counts are floored.
func VcnvFinal(opened decimal.Decimal) int64 {
	n := opened.Floor()
	if n.IsNegative() {
		n = decimal.Zero
	}

	score := decimal.NewFromInt(vcnvFinalBase).Sub(n.Mul(decimal.NewFromInt(vcnvCellPenalty)))
	if score.IsNegative() {
		return 0
	}

	return score.IntPart()
}

// VcnvRow scores a single cell question of the obstacle round.
func VcnvRow(o domain.Outcome, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	if o == domain.OutcomeCorrect {
		return apply(current, vcnvRowCorrect), nil
	}

	return apply(current, 0), nil
}

// VcnvObstacle scores a claim on the obstacle keyword. A failed claim scores nothing;
// the caller disqualifies the player from the rest of the round.
func VcnvObstacle(o domain.Outcome, opened decimal.Decimal, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	if o == domain.OutcomeCorrect {
		return apply(current, VcnvFinal(opened)), nil
	}

	return apply(current, 0), nil
}

// VuotCnvBuzz scores a buzz-in answer by the order correct answers arrived in.
func VuotCnvBuzz(o domain.Outcome, rank int, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	if o != domain.OutcomeCorrect {
		return apply(current, 0), nil
	}

	if rank < 1 {
		rank = 1
	}
	if rank > len(buzzPoints) {
		return apply(current, buzzFloor), nil
	}

	return apply(current, buzzPoints[rank-1]), nil
}

// Wager is the package a player picked for a về đích question.
type Wager struct {
	Value int64
	Star  bool
}

// VeDich scores the targeted player's answer. The star of hope doubles a correct
// answer and costs the package value on a miss.
func VeDich(o domain.Outcome, w Wager, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	switch {
	case o == domain.OutcomeCorrect && w.Star:
		return apply(current, 2*w.Value), nil
	case o == domain.OutcomeCorrect:
		return apply(current, w.Value), nil
	case w.Star:
		return apply(current, -w.Value), nil
	default:
		return apply(current, 0), nil
	}
}

// VeDichSteal scores another player answering after the target missed.
func VeDichSteal(o domain.Outcome, value, current int64) (Result, error) {
	if _, err := ParseOutcome(string(o)); err != nil {
		return Result{}, err
	}

	if o == domain.OutcomeCorrect {
		return apply(current, value), nil
	}

	return apply(current, -value/2), nil
}

func apply(current, delta int64) Result {
	next := current + delta
	if next < 0 {
		next = 0
	}

	return Result{Delta: delta, Next: next}
}
