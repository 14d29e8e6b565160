// Package ebitda derives EBITDA (operating income + depreciation + amortization)
// from a single filing.
package ebitda

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/aristath/dart-ebitda/internal/financials"
	"github.com/rs/zerolog"
)

// Account name keywords. Filers label the same line differently, so each
// component is matched by substring against a small vocabulary.
var (
	OperatingIncomeKeywords = []string{"영업이익", "영업이익(손실)", "영업손익"}
	DepreciationKeywords    = []string{"감가상각비", "유형자산상각비", "유형자산감가상각비"}
	AmortizationKeywords    = []string{"무형자산상각비", "무형자산감가상각비"}

	// CombinedKeywords match a single line reporting depreciation and
	// amortization together.
	CombinedKeywords = []string{"감가상각비및무형자산상각비", "감가상각비 및 무형자산상각비", "감가ㆍ상각비"}
)

// Labels used when a component's account is missing.
const (
	defaultOperatingIncomeLabel = "영업이익"
	defaultDepreciationLabel    = "감가상각비"
	defaultAmortizationLabel    = "무형자산상각비"
)

const intangibleWording = "무형자산"

// FilingSource provides filings, typically cache-first.
type FilingSource interface {
	GetFiling(ctx context.Context, req financials.FilingRequest) (*financials.Filing, error)
}

// Calculator computes EBITDA for one filing at a time.
type Calculator struct {
	filings FilingSource
	log     zerolog.Logger
}

// NewCalculator creates a calculator reading filings from filings.
func NewCalculator(filings FilingSource, log zerolog.Logger) *Calculator {
	return &Calculator{
		filings: filings,
		log:     log.With().Str("component", "ebitda").Logger(),
	}
}

// Calculate fetches the filing and derives EBITDA from it.
// Upstream and cache errors are returned as they come.
func (c *Calculator) Calculate(ctx context.Context, corpCode string, year int, reportCode domain.ReportCode, fsDiv domain.ConsolidationBasis) (*domain.EbitdaResult, error) {
	filing, err := c.filings.GetFiling(ctx, financials.FilingRequest{
		CorpCode:   corpCode,
		Year:       year,
		ReportCode: reportCode,
		FsDiv:      fsDiv,
	})
	if err != nil {
		return nil, err
	}

	accounts := filing.Accounts()

	operating, hasOperating := financials.FindByKeywords(
		financials.BySection(accounts, domain.SectionIncomeStatement), OperatingIncomeKeywords)

	cashFlow := financials.BySection(accounts, domain.SectionCashFlow)
	combined, hasCombined := financials.FindByKeywords(cashFlow, CombinedKeywords)

	var (
		depreciation, amortization       domain.FinancialAccount
		hasDepreciation, hasAmortization bool
	)
	if hasCombined {
		depreciation, hasDepreciation = combined, true
		amortization, hasAmortization = combined, true
	} else {
		depreciation, hasDepreciation = financials.FindByKeywords(cashFlow, DepreciationKeywords)
		amortization, hasAmortization = financials.FindByKeywords(cashFlow, AmortizationKeywords)
	}

	basis := domain.BasisPeriod
	if !reportCode.IsAnnual() {
		basis = domain.BasisCumulative
	}

	result := &domain.EbitdaResult{
		CorpCode:          corpCode,
		Year:              year,
		ReportCode:        reportCode,
		ReportName:        reportCode.Name(),
		FsDiv:             fsDiv,
		ConsolidationName: fsDiv.Name(),
		OperatingIncome:   component(operating, hasOperating, basis, defaultOperatingIncomeLabel),
		Depreciation:      component(depreciation, hasDepreciation, basis, defaultDepreciationLabel),
		Amortization:      component(amortization, hasAmortization, basis, defaultAmortizationLabel),
		Currency:          domain.CurrencyKRW,
		Basis:             basis,
		ReceiptNo:         filing.ReceiptNo,
		FetchedAt:         filing.FetchedAt,
		FromCache:         filing.FromCache,
	}

	result.Total = result.OperatingIncome.Amount + result.Depreciation.Amount
	if !hasCombined {
		result.Total += result.Amortization.Amount
	}

	result.Warnings = warnings(hasOperating, depreciation, hasDepreciation, hasAmortization, basis, reportCode)

	c.log.Debug().
		Str("corp_code", corpCode).
		Int("year", year).
		Str("report_code", string(reportCode)).
		Bool("combined", hasCombined).
		Float64("total", result.Total).
		Msg("EBITDA calculated")

	return result, nil
}

// component builds one EBITDA component. A component counts as found only
// when its account exists and the selected amount parses.
func component(account domain.FinancialAccount, found bool, basis domain.AmountBasis, defaultLabel string) domain.ComponentAmount {
	if !found {
		return domain.ComponentAmount{Label: defaultLabel, Currency: domain.CurrencyKRW}
	}

	raw := account.PeriodAmount
	if basis == domain.BasisCumulative {
		raw = account.CumulativeAmount
	}
	amount, ok := ParseAmount(raw)

	return domain.ComponentAmount{
		Label:    account.Name,
		Amount:   amount,
		Currency: account.Currency,
		Found:    ok,
	}
}

// ParseAmount parses a filed amount such as "1,234,567". Missing, blank and
// unparsable values yield 0 and false.
func ParseAmount(raw *string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	s := strings.TrimSpace(strings.ReplaceAll(*raw, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func warnings(hasOperating bool, depreciation domain.FinancialAccount, hasDepreciation, hasAmortization bool, basis domain.AmountBasis, reportCode domain.ReportCode) []string {
	var out []string

	if !hasOperating {
		out = append(out, "Operating income account not found; the EBITDA figure may be inaccurate.")
	}
	if !hasDepreciation {
		out = append(out, "Depreciation account not found; check whether the cash flow statement reports it.")
	}
	if !hasAmortization && hasDepreciation && !strings.Contains(depreciation.Name, intangibleWording) {
		out = append(out, "Amortization of intangible assets is not reported as a separate line; it may be included in depreciation.")
	}

	if basis == domain.BasisCumulative {
		out = append(out, "Calculated from the cumulative (year-to-date) amounts of the "+reportCode.Name()+
			". Subtract the previous period's figures to get a single-quarter result.")
	} else {
		out = append(out, "Calculated from current-period amounts (full-year result).")
	}

	return out
}
