package models

import "fmt"

// Action is the canonical classification of a fill's effect on a position.
type Action string

const (
	// ActionBuyOpen opens or extends a long lineage.
	ActionBuyOpen Action = "BUY_OPEN"
	// ActionSellOpen opens or extends a short lineage.
	ActionSellOpen Action = "SELL_OPEN"
	// ActionBuyClose buys back a short lineage.
	ActionBuyClose Action = "BUY_CLOSE"
	// ActionSellClose sells out of a long lineage.
	ActionSellClose Action = "SELL_CLOSE"
)

// IsClose returns true for the two closing actions.
func (a Action) IsClose() bool {
	return a == ActionBuyClose || a == ActionSellClose
}

// IsSell returns true for the two sell-side actions. Sell-side gross notional
// accrues to a position's credit total, buy-side to its debit total.
func (a Action) IsSell() bool {
	return a == ActionSellOpen || a == ActionSellClose
}

// UnknownEffectPolicy selects how the resolver treats fills whose open/close
// qualifier the broker did not report. The default assumes a short-premium
// book: sells open new shorts, buys close existing ones. The bias is a policy
// knob rather than a silent constant so a long-premium account can override it
// in config without a code change.
type UnknownEffectPolicy string

const (
	// PolicyAssumeShort treats SELL/UNKNOWN as SELL_OPEN and BUY/UNKNOWN as
	// BUY_CLOSE.
	PolicyAssumeShort UnknownEffectPolicy = "assume_short"
	// PolicyAssumeLong treats BUY/UNKNOWN as BUY_OPEN and SELL/UNKNOWN as
	// SELL_CLOSE.
	PolicyAssumeLong UnknownEffectPolicy = "assume_long"
	// PolicyReject refuses to guess: UNKNOWN-qualifier fills resolve as
	// indeterminate and are skipped with a warning.
	PolicyReject UnknownEffectPolicy = "reject"
)

// Valid returns true if the policy is one of the defined constants.
func (p UnknownEffectPolicy) Valid() bool {
	switch p {
	case PolicyAssumeShort, PolicyAssumeLong, PolicyReject:
		return true
	default:
		return false
	}
}

// ErrIndeterminate is returned by ResolveAction when an event's direction is
// neither BUY nor SELL, or the policy refuses an UNKNOWN qualifier.
type ErrIndeterminate struct {
	Direction Direction
	OpenClose OpenClose
}

func (e *ErrIndeterminate) Error() string {
	return fmt.Sprintf("indeterminate action for direction=%q open_close=%q", e.Direction, e.OpenClose)
}

// ResolveAction maps an event's raw (direction, open/close) pair to a
// canonical action and signed contract delta.
//
// The mapping is total over {BUY,SELL}x{OPENING,CLOSING,UNKNOWN}; any other
// direction yields *ErrIndeterminate. Sign convention: opening-short and
// closing-long deltas are negative, opening-long and closing-short positive,
// so a position's running contract count is negative for short lineages.
func ResolveAction(e *TradeEvent, policy UnknownEffectPolicy) (Action, int, error) {
	q := e.Quantity

	switch e.Direction {
	case DirectionSell:
		switch e.OpenClose {
		case EffectOpening:
			return ActionSellOpen, -q, nil
		case EffectClosing:
			return ActionSellClose, -q, nil
		default:
			switch policy {
			case PolicyAssumeLong:
				return ActionSellClose, -q, nil
			case PolicyReject:
				return "", 0, &ErrIndeterminate{e.Direction, e.OpenClose}
			default: // PolicyAssumeShort
				return ActionSellOpen, -q, nil
			}
		}
	case DirectionBuy:
		switch e.OpenClose {
		case EffectOpening:
			return ActionBuyOpen, q, nil
		case EffectClosing:
			return ActionBuyClose, q, nil
		default:
			switch policy {
			case PolicyAssumeLong:
				return ActionBuyOpen, q, nil
			case PolicyReject:
				return "", 0, &ErrIndeterminate{e.Direction, e.OpenClose}
			default:
				return ActionBuyClose, q, nil
			}
		}
	default:
		return "", 0, &ErrIndeterminate{e.Direction, e.OpenClose}
	}
}
