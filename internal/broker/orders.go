package broker

import (
	"bytes"
	"encoding/json"
)

// Order statuses reported by the orders endpoint. Only terminal-filled
// orders carry fills the ledger can ingest.
const (
	StatusFilled = "FILLED"
)

// Instruction and position-effect markers. Matching is substring-based in
// the normalizer because the API mixes forms like "BUY_TO_OPEN" and "BUY".
const (
	AssetTypeOption         = "OPTION"
	AssetTypeOptionContract = "OPTION_CONTRACT"
)

// Handle single-object vs array responses from the orders endpoint.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// Order is one raw order record as returned by the broker. Every field the
// normalizer reads is modeled explicitly; anything else in the payload is
// ignored at decode time rather than coerced ad hoc downstream.
type Order struct {
	OrderID            json.Number        `json:"orderId"`
	Status             string             `json:"status"`
	Price              float64            `json:"price"`
	AveragePrice       float64            `json:"averagePrice"`
	EnteredTime        string             `json:"enteredTime"`
	CloseTime          string             `json:"closeTime"`
	OrderCommission    float64            `json:"orderCommission"`
	OrderFee           float64            `json:"orderFee"`
	Legs               singleOrArray[Leg] `json:"orderLegCollection"`
	ActivityCollection []Activity         `json:"orderActivityCollection"`
}

// Leg is one leg of a (possibly multi-leg) order.
type Leg struct {
	LegID          json.Number `json:"legId"`
	Instruction    string      `json:"instruction"`    // e.g. SELL_TO_OPEN, BUY_TO_CLOSE
	PositionEffect string      `json:"positionEffect"` // OPENING | CLOSING | AUTOMATIC
	Quantity       float64     `json:"quantity"`
	Instrument     Instrument  `json:"instrument"`
}

// Instrument describes the traded contract on a leg.
type Instrument struct {
	AssetType        string  `json:"assetType"`
	Symbol           string  `json:"symbol"`
	UnderlyingSymbol string  `json:"underlyingSymbol"`
	PutCall          string  `json:"putCall"`
	OptionType       string  `json:"optionType"`
	StrikePrice      float64 `json:"strikePrice"`
	MaturityDate     string  `json:"maturityDate"`
	ExpirationDate   string  `json:"expirationDate"`
}

// Activity groups the execution reports of an order.
type Activity struct {
	ActivityType  string         `json:"activityType"`
	ExecutionLegs []ExecutionLeg `json:"executionLegs"`
}

// ExecutionLeg is one partial-fill execution. The normalizer prefers the
// first execution's price over the order-level price.
type ExecutionLeg struct {
	LegID    json.Number `json:"legId"`
	Price    float64     `json:"price"`
	Quantity float64     `json:"quantity"`
	Time     string      `json:"time"`
}

// FirstExecutionPrice returns the price of the earliest execution leg, or 0
// when the order carries no execution reports.
func (o *Order) FirstExecutionPrice() float64 {
	for _, act := range o.ActivityCollection {
		for _, exec := range act.ExecutionLegs {
			if exec.Price > 0 {
				return exec.Price
			}
		}
	}
	return 0
}

// FillPrice returns the best-available per-contract fill price: first
// execution, then order-level limit, then average price.
func (o *Order) FillPrice() float64 {
	if p := o.FirstExecutionPrice(); p > 0 {
		return p
	}
	if o.Price > 0 {
		return o.Price
	}
	return o.AveragePrice
}

// Timestamp returns the raw order timestamp string, preferring entry time.
func (o *Order) Timestamp() string {
	if o.EnteredTime != "" {
		return o.EnteredTime
	}
	return o.CloseTime
}
