// Package analytics computes per-position return metrics and the portfolio
// roll-up. Everything here is a pure function of a position snapshot; nothing
// mutates the store.
package analytics

import (
	"math"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// annualizedClamp bounds annualized figures so a large move on a days-old
// position cannot extrapolate to an absurd number.
const annualizedClamp = 500.0

// Row is the computed analytics for one position.
type Row struct {
	PositionID   string
	Symbol       string
	Strategy     models.Strategy
	Contracts    int
	EntryDate    time.Time
	AgeDays      int
	DTE          int
	EntryIVPct   float64
	CurrentIVPct float64
	IVChangePct  float64
	Delta        float64
	PL           float64
	ReturnPct    float64
	AnnReturnPct float64
	Credit       float64
	Exposure     float64
	ROCPct       float64
	AnnROCPct    float64
	ExposurePct  float64
	Rules        RuleResults
}

// Summary is the portfolio-level roll-up across all analyzed positions.
type Summary struct {
	Positions     int
	TotalCredit   float64
	TotalPL       float64
	TotalExposure float64
	NetCapital    float64
	ReturnPct     float64
	ROCPct        float64
	AvgAgeDays    float64
	AnnReturnPct  float64
	AnnROCPct     float64
	BenchmarkPct  float64
	ExcessPct     float64
}

// Report bundles the per-position rows with the portfolio summary.
type Report struct {
	Rows    []Row
	Summary Summary
}

// Engine computes analytics against a fixed benchmark rate.
type Engine struct {
	benchmarkRate float64
}

// NewEngine creates an Engine. benchmarkRate is an annualized percentage,
// e.g. the 3-month T-bill yield.
func NewEngine(benchmarkRate float64) *Engine {
	return &Engine{benchmarkRate: benchmarkRate}
}

// PL returns the position's unrealized P/L at its current mark. The sign
// convention branches on strategy stance: a short lineage profits as the mark
// falls below entry, a long lineage as it rises above. Contract counts are
// signed, so the magnitude uses the absolute count.
func PL(p *models.Position) float64 {
	move := p.EntryPrice - p.Mark
	if !p.Strategy.IsShort() {
		move = -move
	}
	return move * float64(p.AbsContracts()) * models.SharesPerContract
}

// Annualize compounds a period return over its age to a yearly figure,
// clamped to the configured bounds. Zero or negative age yields zero.
func Annualize(returnPct float64, ageDays float64) float64 {
	if ageDays <= 0 {
		return 0
	}
	ann := (math.Pow(1+returnPct/100, 365/ageDays) - 1) * 100
	if math.IsNaN(ann) {
		return 0
	}
	return clamp(ann, -annualizedClamp, annualizedClamp)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// AnalyzePosition computes one position's row as of now.
func (e *Engine) AnalyzePosition(p *models.Position, now time.Time) Row {
	ageDays := p.AgeDays(now)
	pl := PL(p)

	// Credit keeps the contract sign: a short lineage's entry premium is
	// negative here, which is what makes the capital denominator below
	// nonzero for short books and zero for long ones.
	credit := p.EntryPrice * models.SharesPerContract * float64(p.Contracts)
	exposure := math.Abs(credit)

	returnPct := 0.0
	if exposure != 0 {
		returnPct = pl / exposure * 100
	}

	ivChange := 0.0
	if p.EntryIV > 0 {
		ivChange = (p.CurrentIV/p.EntryIV - 1) * 100
	}

	rocPct := 0.0
	if denom := exposure - credit; denom != 0 {
		rocPct = pl / denom * 100
	}

	exposurePct := 0.0
	if p.AccountSize > 0 {
		exposurePct = exposure / p.AccountSize * 100
	}

	row := Row{
		PositionID:   p.ID,
		Symbol:       p.Symbol,
		Strategy:     p.Strategy,
		Contracts:    p.Contracts,
		EntryDate:    p.EntryDate,
		AgeDays:      ageDays,
		DTE:          p.DTE(now),
		EntryIVPct:   p.EntryIV * 100,
		CurrentIVPct: p.CurrentIV * 100,
		IVChangePct:  ivChange,
		Delta:        p.Delta,
		PL:           pl,
		ReturnPct:    returnPct,
		AnnReturnPct: Annualize(returnPct, float64(ageDays)),
		Credit:       credit,
		Exposure:     exposure,
		ROCPct:       rocPct,
		AnnROCPct:    Annualize(rocPct, float64(ageDays)),
		ExposurePct:  exposurePct,
	}
	row.Rules = EvaluateRules(p, &row, now)
	return row
}

// Analyze computes rows for every position and the portfolio summary.
func (e *Engine) Analyze(positions []models.Position, now time.Time) Report {
	rows := make([]Row, 0, len(positions))
	for i := range positions {
		rows = append(rows, e.AnalyzePosition(&positions[i], now))
	}
	return Report{Rows: rows, Summary: e.summarize(rows)}
}

func (e *Engine) summarize(rows []Row) Summary {
	s := Summary{Positions: len(rows), BenchmarkPct: e.benchmarkRate}

	totalAge := 0.0
	for i := range rows {
		s.TotalCredit += rows[i].Credit
		s.TotalPL += rows[i].PL
		s.TotalExposure += rows[i].Exposure
		totalAge += float64(rows[i].AgeDays)
	}
	s.NetCapital = s.TotalExposure - s.TotalCredit

	if s.TotalExposure != 0 {
		s.ReturnPct = s.TotalPL / s.TotalExposure * 100
	}
	if s.NetCapital != 0 {
		s.ROCPct = s.TotalPL / s.NetCapital * 100
	}
	if len(rows) > 0 {
		s.AvgAgeDays = totalAge / float64(len(rows))
	}
	s.AnnReturnPct = Annualize(s.ReturnPct, s.AvgAgeDays)
	s.AnnROCPct = Annualize(s.ROCPct, s.AvgAgeDays)
	s.ExcessPct = s.AnnReturnPct - s.BenchmarkPct
	return s
}
