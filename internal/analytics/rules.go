package analytics

import (
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// Management-rule thresholds for a short-premium book.
const (
	maxMarginUsagePct = 5.0
	maxAbsDelta       = 0.35
	minRuleDTE        = 45
	profitTargetFrac  = 0.25
)

// RuleResults holds the pass/fail state of the six position-management
// checks. All-green means the position is within plan; any red flags it for
// operator review.
type RuleResults struct {
	MarginOK     bool    // strike notional within the account-size budget
	DeltaOK      bool    // |delta| at or below the short-premium ceiling
	DTEOK        bool    // enough calendar runway left
	IVCompressed bool    // implied volatility below its entry level
	ProfitTarget bool    // unrealized P/L at or past the take-profit mark
	AboveWater   bool    // strike at or above the premium-adjusted breakeven
	MarginPct    float64 // strike×100 / account size, as a percentage
}

// Passing reports whether every rule is green.
func (r RuleResults) Passing() bool {
	return r.MarginOK && r.DeltaOK && r.DTEOK && r.IVCompressed && r.ProfitTarget && r.AboveWater
}

// EvaluateRules runs the management checks for one position using its
// computed analytics row.
func EvaluateRules(p *models.Position, row *Row, now time.Time) RuleResults {
	var r RuleResults

	if p.AccountSize > 0 {
		r.MarginPct = p.Strike * models.SharesPerContract / p.AccountSize * 100
		r.MarginOK = r.MarginPct <= maxMarginUsagePct
	}

	delta := p.Delta
	if delta < 0 {
		delta = -delta
	}
	r.DeltaOK = delta <= maxAbsDelta

	r.DTEOK = p.DTE(now) > minRuleDTE
	r.IVCompressed = row.IVChangePct < 0
	entryPremium := p.EntryPrice * models.SharesPerContract * float64(p.AbsContracts())
	r.ProfitTarget = row.PL >= profitTargetFrac*entryPremium

	breakeven := p.Strike - p.EntryPrice
	r.AboveWater = p.Strike >= breakeven

	return r
}
