// Package ledger turns raw broker orders into the relational position ledger:
// normalization, action resolution, position matching, and transactional
// application, in that order. The package is the only writer of positions and
// trades.
package ledger

import (
	"log"
	"strings"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/broker"
	"github.com/kirkhalloran/oraclepm/internal/models"
	"github.com/kirkhalloran/oraclepm/internal/occ"
)

// Normalizer flattens raw broker orders into per-leg TradeEvents. It emits
// only what it can fully account for: a leg missing a recoverable strike or
// expiration is dropped with a warning, and an order whose timestamp cannot
// be parsed is dropped whole rather than ingested at a guessed time.
type Normalizer struct {
	logger *log.Logger
}

// NewNormalizer creates a Normalizer writing warnings to the given logger.
func NewNormalizer(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{logger: logger}
}

// Accepted broker timestamp layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05-0700",
}

func parseBrokerTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeOrders converts a batch of raw orders into trade events. Orders
// that are not terminally filled are skipped silently; everything else that
// gets dropped is logged with enough of the natural key to trace it back to
// the broker statement.
func (n *Normalizer) NormalizeOrders(account string, orders []broker.Order) []models.TradeEvent {
	var events []models.TradeEvent
	for i := range orders {
		events = append(events, n.normalizeOrder(account, &orders[i])...)
	}
	return events
}

func (n *Normalizer) normalizeOrder(account string, order *broker.Order) []models.TradeEvent {
	if !strings.EqualFold(order.Status, broker.StatusFilled) {
		return nil
	}

	tradeTime, ok := parseBrokerTime(order.Timestamp())
	if !ok {
		n.logger.Printf("normalizer: order %s: unparseable timestamp %q, skipping order",
			order.OrderID, order.Timestamp())
		return nil
	}

	optionLegs := 0
	for i := range order.Legs {
		if isOptionLeg(&order.Legs[i]) {
			optionLegs++
		}
	}
	if optionLegs == 0 {
		return nil
	}

	// Order-level commission and fee are split evenly across option legs so
	// lineage totals reconcile with the statement.
	perLegCommission := order.OrderCommission / float64(optionLegs)
	perLegFee := order.OrderFee / float64(optionLegs)
	fillPrice := order.FillPrice()

	var events []models.TradeEvent
	for i := range order.Legs {
		leg := &order.Legs[i]
		if !isOptionLeg(leg) {
			continue
		}

		event, ok := n.normalizeLeg(account, order, leg, tradeTime, fillPrice, perLegCommission, perLegFee)
		if !ok {
			continue
		}
		events = append(events, event)
	}
	return events
}

func isOptionLeg(leg *broker.Leg) bool {
	switch strings.ToUpper(leg.Instrument.AssetType) {
	case broker.AssetTypeOption, broker.AssetTypeOptionContract:
		return true
	default:
		return false
	}
}

func (n *Normalizer) normalizeLeg(
	account string,
	order *broker.Order,
	leg *broker.Leg,
	tradeTime time.Time,
	fillPrice, commission, fee float64,
) (models.TradeEvent, bool) {
	event := models.TradeEvent{
		Account:     account,
		Direction:   legDirection(leg.Instruction),
		OpenClose:   legEffect(leg),
		Quantity:    int(leg.Quantity),
		Price:       fillPrice,
		Commissions: commission,
		Fees:        fee,
		TradeTime:   tradeTime,
		OrderID:     order.OrderID.String(),
		LegID:       leg.LegID.String(),
	}

	// Structured fields win; the option symbol fills whatever the payload
	// left out.
	event.Symbol = strings.ToUpper(strings.TrimSpace(leg.Instrument.UnderlyingSymbol))
	event.OptionType = legKind(&leg.Instrument)
	event.Strike = leg.Instrument.StrikePrice
	event.Expiration = legExpiration(&leg.Instrument)

	if event.Symbol == "" || !event.OptionType.Valid() || event.Strike <= 0 || event.Expiration.IsZero() {
		if contract, err := occ.Parse(leg.Instrument.Symbol); err == nil {
			if event.Symbol == "" {
				event.Symbol = contract.Underlying
			}
			if !event.OptionType.Valid() {
				event.OptionType = contract.Kind
			}
			if event.Strike <= 0 {
				event.Strike = contract.Strike
			}
			if event.Expiration.IsZero() {
				event.Expiration = contract.Expiration
			}
		}
	}

	if err := event.Validate(); err != nil {
		n.logger.Printf("normalizer: order %s leg %s: %v, dropping leg",
			order.OrderID, leg.LegID, err)
		return models.TradeEvent{}, false
	}
	return event, true
}

// legDirection classifies the leg instruction by substring so that both the
// long forms (SELL_TO_OPEN) and bare forms (SELL) match.
func legDirection(instruction string) models.Direction {
	upper := strings.ToUpper(instruction)
	if strings.Contains(upper, "SELL") {
		return models.DirectionSell
	}
	if strings.Contains(upper, "BUY") {
		return models.DirectionBuy
	}
	return models.Direction(upper)
}

// legEffect reads the position effect, falling back to the instruction's
// open/close suffix. AUTOMATIC and missing values both map to UNKNOWN; the
// resolver's policy decides what to do with those.
func legEffect(leg *broker.Leg) models.OpenClose {
	switch strings.ToUpper(leg.PositionEffect) {
	case "OPENING":
		return models.EffectOpening
	case "CLOSING":
		return models.EffectClosing
	}

	upper := strings.ToUpper(leg.Instruction)
	switch {
	case strings.Contains(upper, "TO_OPEN") || strings.Contains(upper, "OPEN"):
		return models.EffectOpening
	case strings.Contains(upper, "TO_CLOSE") || strings.Contains(upper, "CLOSE"):
		return models.EffectClosing
	default:
		return models.EffectUnknown
	}
}

func legKind(inst *broker.Instrument) models.OptionKind {
	raw := inst.PutCall
	if raw == "" {
		raw = inst.OptionType
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PUT", "P":
		return models.KindPut
	case "CALL", "C":
		return models.KindCall
	default:
		return ""
	}
}

// legExpiration parses the structured expiration date. Payloads carry either
// a bare date or a full timestamp; both reduce to midnight UTC.
func legExpiration(inst *broker.Instrument) time.Time {
	raw := inst.ExpirationDate
	if raw == "" {
		raw = inst.MaturityDate
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			return t.UTC()
		}
	}
	if t, ok := parseBrokerTime(raw); ok {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}
