package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/olympia/internal/domain"
	"github.com/victornm/olympia/internal/errors"
)

// Input is everything a rule may look at. Fields that do not apply to a round are ignored.
type Input struct {
	Outcome domain.Outcome
	Current int64

	// vcnv
	Obstacle    bool
	OpenedCells decimal.Decimal

	// vuot_cnv
	BuzzRank int

	// ve_dich
	Wager Wager
	Steal bool
}

type Rule func(in Input) (Result, error)

var rules = map[domain.RoundType]Rule{
	domain.RoundKhoiDong: func(in Input) (Result, error) {
		return KhoiDongCommon(in.Outcome, in.Current)
	},
	domain.RoundVCNV: func(in Input) (Result, error) {
		if in.Obstacle {
			return VcnvObstacle(in.Outcome, in.OpenedCells, in.Current)
		}
		return VcnvRow(in.Outcome, in.Current)
	},
	domain.RoundVuotCNV: func(in Input) (Result, error) {
		return VuotCnvBuzz(in.Outcome, in.BuzzRank, in.Current)
	},
	domain.RoundVeDich: func(in Input) (Result, error) {
		if in.Steal {
			return VeDichSteal(in.Outcome, in.Wager.Value, in.Current)
		}
		return VeDich(in.Outcome, in.Wager, in.Current)
	},
}

// Apply dispatches to the rule of the given round type.
func Apply(round domain.RoundType, in Input) (Result, error) {
	rule, ok := rules[round]
	if !ok {
		return Result{}, errors.InvalidSessionState("no scoring rule for round type %q", round)
	}

	return rule(in)
}

// ResolvesQuestion reports whether a decision in this round closes the question.
// Buzz-in questions take several answers and are resolved by the host.
func ResolvesQuestion(round domain.RoundType) bool {
	return round != domain.RoundVuotCNV
}
