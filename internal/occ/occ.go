// Package occ parses OSI/OCC option symbols. Broker order payloads sometimes
// omit the structured strike and expiration fields, but the leg's option
// symbol always encodes them, so the normalizer falls back to parsing it.
package occ

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// Contract is the result of parsing one option symbol.
type Contract struct {
	Underlying string
	Expiration time.Time // date at midnight UTC
	Kind       models.OptionKind
	Strike     float64
}

// Fixed-width OSI layout: 6-char space-padded root, 6-digit YYMMDD
// expiration, 1-char C/P flag, 8-digit strike in thousandths.
const (
	rootWidth   = 6
	dateWidth   = 6
	strikeWidth = 8
	symbolWidth = rootWidth + dateWidth + 1 + strikeWidth
)

// Parse decodes a fixed-width OSI option symbol, e.g.
// "MSTR  251219P00050000" -> MSTR put, strike 50.00, expiring 2025-12-19.
// Symbols with an unpadded root (the Tradier/OPRA compact form, e.g.
// "SPY240315C00610000") are accepted as well by scanning for the six-digit
// date run.
func Parse(symbol string) (Contract, error) {
	var c Contract

	if len(symbol) < dateWidth+1+strikeWidth+1 {
		return c, fmt.Errorf("option symbol too short: %q", symbol)
	}

	// Fixed-width form first: a root padded to exactly six characters puts
	// the date at a known offset.
	datePos := -1
	if len(symbol) == symbolWidth && allDigits(symbol[rootWidth:rootWidth+dateWidth]) {
		datePos = rootWidth
	} else {
		// Compact form: find the first six-digit run followed by C or P.
		for i := 1; i <= len(symbol)-dateWidth-1; i++ {
			if !allDigits(symbol[i : i+dateWidth]) {
				continue
			}
			if t := symbol[i+dateWidth]; t == 'C' || t == 'P' {
				datePos = i
				break
			}
		}
	}
	if datePos == -1 {
		return c, fmt.Errorf("no YYMMDD expiration found in option symbol %q", symbol)
	}

	root := strings.TrimRight(symbol[:datePos], " ")
	if root == "" {
		return c, fmt.Errorf("empty root in option symbol %q", symbol)
	}

	dateStr := symbol[datePos : datePos+dateWidth]
	exp, err := time.Parse("060102", dateStr)
	if err != nil {
		return c, fmt.Errorf("invalid expiration %q in option symbol %q: %w", dateStr, symbol, err)
	}

	kindPos := datePos + dateWidth
	var kind models.OptionKind
	switch symbol[kindPos] {
	case 'C':
		kind = models.KindCall
	case 'P':
		kind = models.KindPut
	default:
		return c, fmt.Errorf("invalid option type %q in symbol %q, expected 'C' or 'P'", symbol[kindPos], symbol)
	}

	strikeStart := kindPos + 1
	strikeEnd := strikeStart + strikeWidth
	if strikeEnd > len(symbol) {
		return c, fmt.Errorf("option symbol %q too short for 8-digit strike", symbol)
	}
	strikeStr := symbol[strikeStart:strikeEnd]
	if !allDigits(strikeStr) {
		return c, fmt.Errorf("invalid strike %q in option symbol %q, expected 8 digits", strikeStr, symbol)
	}
	strikeInt, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return c, fmt.Errorf("parsing strike %q in option symbol %q: %w", strikeStr, symbol, err)
	}

	c.Underlying = root
	c.Expiration = time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
	c.Kind = kind
	c.Strike = float64(strikeInt) / 1000.0
	return c, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
