package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkhalloran/oraclepm/internal/broker"
	"github.com/kirkhalloran/oraclepm/internal/models"
)

func filledOrder() broker.Order {
	var order broker.Order
	raw := `{
		"orderId": 1001,
		"status": "FILLED",
		"price": 1.50,
		"enteredTime": "2025-11-01T15:30:00.000Z",
		"orderCommission": 1.30,
		"orderFee": 0.10,
		"orderLegCollection": [{
			"legId": 1,
			"instruction": "SELL_TO_OPEN",
			"positionEffect": "OPENING",
			"quantity": 2,
			"instrument": {
				"assetType": "OPTION",
				"symbol": "MSTR  251219P00050000",
				"underlyingSymbol": "MSTR",
				"putCall": "PUT",
				"strikePrice": 50.0,
				"expirationDate": "2025-12-19"
			}
		}]
	}`
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		panic(err)
	}
	return order
}

func TestNormalizeFilledOrder(t *testing.T) {
	n := NewNormalizer(discardLogger())

	events := n.NormalizeOrders("ACCT1", []broker.Order{filledOrder()})
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "ACCT1", e.Account)
	assert.Equal(t, "MSTR", e.Symbol)
	assert.Equal(t, models.KindPut, e.OptionType)
	assert.Equal(t, 50.0, e.Strike)
	assert.Equal(t, time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), e.Expiration)
	assert.Equal(t, models.DirectionSell, e.Direction)
	assert.Equal(t, models.EffectOpening, e.OpenClose)
	assert.Equal(t, 2, e.Quantity)
	assert.Equal(t, 1.50, e.Price)
	assert.InDelta(t, 1.30, e.Commissions, 1e-9)
	assert.InDelta(t, 0.10, e.Fees, 1e-9)
	assert.Equal(t, time.Date(2025, 11, 1, 15, 30, 0, 0, time.UTC), e.TradeTime)
}

func TestNormalizeSkipsNonFilledOrders(t *testing.T) {
	n := NewNormalizer(discardLogger())

	working := filledOrder()
	working.Status = "WORKING"
	canceled := filledOrder()
	canceled.Status = "CANCELED"

	events := n.NormalizeOrders("ACCT1", []broker.Order{working, canceled})
	assert.Empty(t, events)
}

func TestNormalizeDropsOrderWithBadTimestamp(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	order.EnteredTime = "not-a-time"
	order.CloseTime = ""

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	assert.Empty(t, events, "an unparseable timestamp must drop the whole order")
}

func TestNormalizeFallsBackToOptionSymbol(t *testing.T) {
	n := NewNormalizer(discardLogger())

	// Structured fields stripped; everything must come out of the OCC
	// symbol.
	order := filledOrder()
	order.Legs[0].Instrument.UnderlyingSymbol = ""
	order.Legs[0].Instrument.PutCall = ""
	order.Legs[0].Instrument.StrikePrice = 0
	order.Legs[0].Instrument.ExpirationDate = ""

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 1)
	assert.Equal(t, "MSTR", events[0].Symbol)
	assert.Equal(t, models.KindPut, events[0].OptionType)
	assert.Equal(t, 50.0, events[0].Strike)
	assert.Equal(t, time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), events[0].Expiration)
}

func TestNormalizeDropsUnrecoverableLeg(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	order.Legs[0].Instrument.StrikePrice = 0
	order.Legs[0].Instrument.ExpirationDate = ""
	order.Legs[0].Instrument.Symbol = "garbage"

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	assert.Empty(t, events)
}

func TestNormalizeIgnoresEquityLegs(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	equityLeg := order.Legs[0]
	equityLeg.Instrument.AssetType = "EQUITY"
	order.Legs = append(order.Legs, equityLeg)

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 1)
	// The lone option leg absorbs the whole order commission.
	assert.InDelta(t, 1.30, events[0].Commissions, 1e-9)
}

func TestNormalizeEffectFromInstructionSuffix(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	order.Legs[0].PositionEffect = "AUTOMATIC"
	order.Legs[0].Instruction = "BUY_TO_CLOSE"

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 1)
	assert.Equal(t, models.DirectionBuy, events[0].Direction)
	assert.Equal(t, models.EffectClosing, events[0].OpenClose)
}

func TestNormalizeUnknownEffect(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	order.Legs[0].PositionEffect = ""
	order.Legs[0].Instruction = "SELL"

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 1)
	assert.Equal(t, models.EffectUnknown, events[0].OpenClose)
}

func TestNormalizePrefersExecutionPrice(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	order.ActivityCollection = []broker.Activity{{
		ActivityType:  "EXECUTION",
		ExecutionLegs: []broker.ExecutionLeg{{Price: 1.47, Quantity: 2}},
	}}

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 1)
	assert.Equal(t, 1.47, events[0].Price)
}

func TestNormalizeCommissionSplitAcrossLegs(t *testing.T) {
	n := NewNormalizer(discardLogger())

	order := filledOrder()
	second := order.Legs[0]
	second.LegID = json.Number("2")
	second.Instrument.Symbol = "MSTR  251219C00080000"
	second.Instrument.PutCall = "CALL"
	second.Instrument.StrikePrice = 80.0
	order.Legs = append(order.Legs, second)

	events := n.NormalizeOrders("ACCT1", []broker.Order{order})
	require.Len(t, events, 2)
	assert.InDelta(t, 0.65, events[0].Commissions, 1e-9)
	assert.InDelta(t, 0.65, events[1].Commissions, 1e-9)
	assert.InDelta(t, 0.05, events[0].Fees, 1e-9)
}
