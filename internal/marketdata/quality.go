package marketdata

// Sanity bounds for quote fields. Values outside these are feed glitches,
// not market moves.
const (
	minDelta = -5.0
	maxDelta = 5.0
	maxIV    = 10.0 // 1000% implied vol
)

// Sanitize applies the data-quality filters to a raw quote. Out-of-bounds
// delta and IV are zeroed rather than persisted; the returned warnings name
// each field that was dropped. A quote whose mark is unusable is rejected
// outright, reported by ok=false.
func Sanitize(q Quote) (clean Quote, warnings []string, ok bool) {
	clean = q

	if q.Mark <= 0 {
		return clean, []string{"mark not positive"}, false
	}

	if q.Delta < minDelta || q.Delta > maxDelta {
		warnings = append(warnings, "delta out of bounds")
		clean.Delta = 0
	}
	if q.IV < 0 || q.IV > maxIV {
		warnings = append(warnings, "iv out of bounds")
		clean.IV = 0
	}
	return clean, warnings, true
}
