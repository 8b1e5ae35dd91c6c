package broker

import (
	"encoding/json"
	"testing"
)

func TestSingleOrArrayDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"array", `[{"legId": 1}, {"legId": 2}]`, 2},
		{"single object", `{"legId": 1}`, 1},
		{"null", `null`, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var legs singleOrArray[Leg]
			if err := json.Unmarshal([]byte(tt.in), &legs); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(legs) != tt.want {
				t.Errorf("len = %d, want %d", len(legs), tt.want)
			}
		})
	}
}

func TestOrderFillPrice(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  float64
	}{
		{
			name: "execution price wins",
			order: Order{
				Price:        1.50,
				AveragePrice: 1.48,
				ActivityCollection: []Activity{{
					ExecutionLegs: []ExecutionLeg{{Price: 1.47}},
				}},
			},
			want: 1.47,
		},
		{
			name:  "order price next",
			order: Order{Price: 1.50, AveragePrice: 1.48},
			want:  1.50,
		},
		{
			name:  "average price last",
			order: Order{AveragePrice: 1.48},
			want:  1.48,
		},
		{
			name: "zero execution price ignored",
			order: Order{
				Price: 1.50,
				ActivityCollection: []Activity{{
					ExecutionLegs: []ExecutionLeg{{Price: 0}},
				}},
			},
			want: 1.50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.FillPrice(); got != tt.want {
				t.Errorf("FillPrice = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderTimestamp(t *testing.T) {
	o := Order{EnteredTime: "2025-11-01T15:30:00.000Z", CloseTime: "2025-11-01T16:00:00.000Z"}
	if got := o.Timestamp(); got != "2025-11-01T15:30:00.000Z" {
		t.Errorf("Timestamp = %q, want entered time", got)
	}

	o.EnteredTime = ""
	if got := o.Timestamp(); got != "2025-11-01T16:00:00.000Z" {
		t.Errorf("Timestamp = %q, want close time fallback", got)
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{Status: tt.status}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
