// Package domain provides core domain models and types.
package domain

import "time"

// Currency represents a currency code
type Currency string

// CurrencyKRW is the reporting currency of DART filings unless a line item says otherwise.
const CurrencyKRW Currency = "KRW"

// ReportCode identifies the filing window a statement covers.
type ReportCode string

const (
	// ReportAnnual is the full-year business report
	ReportAnnual ReportCode = "11011"
	// ReportHalfYear is the semi-annual report
	ReportHalfYear ReportCode = "11012"
	// ReportQ1 is the first-quarter report
	ReportQ1 ReportCode = "11013"
	// ReportQ3 is the third-quarter report
	ReportQ3 ReportCode = "11014"
)

var reportNames = map[ReportCode]string{
	ReportAnnual:   "Annual report",
	ReportHalfYear: "Half-year report",
	ReportQ1:       "Q1 report",
	ReportQ3:       "Q3 report",
}

// Valid reports whether the code is one of the four upstream report codes.
func (c ReportCode) Valid() bool {
	_, ok := reportNames[c]
	return ok
}

// Name returns the display name, or the raw code when unknown.
func (c ReportCode) Name() string {
	if name, ok := reportNames[c]; ok {
		return name
	}
	return string(c)
}

// IsAnnual reports whether the code denotes the annual report.
func (c ReportCode) IsAnnual() bool {
	return c == ReportAnnual
}

// ConsolidationBasis selects consolidated or standalone statements.
type ConsolidationBasis string

const (
	// Consolidated statements across subsidiaries
	Consolidated ConsolidationBasis = "CFS"
	// Separate statements for the standalone entity
	Separate ConsolidationBasis = "OFS"
)

var basisNames = map[ConsolidationBasis]string{
	Consolidated: "Consolidated financial statements",
	Separate:     "Separate financial statements",
}

// Valid reports whether the basis is CFS or OFS.
func (b ConsolidationBasis) Valid() bool {
	_, ok := basisNames[b]
	return ok
}

// Name returns the display name, or the raw code when unknown.
func (b ConsolidationBasis) Name() string {
	if name, ok := basisNames[b]; ok {
		return name
	}
	return string(b)
}

// StatementSection is the financial statement a line item belongs to.
type StatementSection string

const (
	SectionBalanceSheet    StatementSection = "balance_sheet"
	SectionIncomeStatement StatementSection = "income_statement"
	SectionCashFlow        StatementSection = "cash_flow"
	SectionOther           StatementSection = "other"
)

// SectionFromCode maps the upstream sj_div code to a section.
// Only BS, IS and CF are recognised; CIS, SCE and anything else are Other.
func SectionFromCode(code string) StatementSection {
	switch code {
	case "BS":
		return SectionBalanceSheet
	case "IS":
		return SectionIncomeStatement
	case "CF":
		return SectionCashFlow
	default:
		return SectionOther
	}
}

// CompanyRecord is one entry of the bulk company directory.
type CompanyRecord struct {
	CorpCode   string  `json:"corp_code"`
	Name       string  `json:"corp_name"`
	StockCode  *string `json:"stock_code"` // nil for unlisted entities
	ModifiedAt string  `json:"modify_date"`
}

// Listed reports whether the entity has a market ticker.
func (r CompanyRecord) Listed() bool {
	return r.StockCode != nil && *r.StockCode != ""
}

// FinancialAccount is one line item of a filing.
type FinancialAccount struct {
	Name             string
	Section          StatementSection
	PeriodAmount     *string // current-period figure
	CumulativeAmount *string // year-to-date figure
	Currency         Currency
}

// AmountBasis says which amount column of a filing was used.
type AmountBasis string

const (
	BasisPeriod     AmountBasis = "period"
	BasisCumulative AmountBasis = "cumulative"
)

// Description returns a human-readable label for the basis.
func (b AmountBasis) Description() string {
	if b == BasisCumulative {
		return "Cumulative (year-to-date) amount"
	}
	return "Current-period amount"
}

// ComponentAmount is one EBITDA component with its source account label.
type ComponentAmount struct {
	Label    string   `json:"label"`
	Amount   float64  `json:"amount"`
	Currency Currency `json:"currency"`
	Found    bool     `json:"found"`
}

// EbitdaResult is the outcome of one calculation. It is not modified after construction.
type EbitdaResult struct {
	CorpCode          string             `json:"corp_code"`
	Year              int                `json:"year"`
	ReportCode        ReportCode         `json:"report_code"`
	ReportName        string             `json:"report_name"`
	FsDiv             ConsolidationBasis `json:"fs_div"`
	ConsolidationName string             `json:"fs_name"`
	OperatingIncome   ComponentAmount    `json:"operating_income"`
	Depreciation      ComponentAmount    `json:"depreciation"`
	Amortization      ComponentAmount    `json:"amortization"`
	Total             float64            `json:"total"`
	Currency          Currency           `json:"currency"`
	Basis             AmountBasis        `json:"basis"`
	ReceiptNo         string             `json:"rcept_no"`
	FetchedAt         time.Time          `json:"fetched_at"`
	FromCache         bool               `json:"from_cache"`
	Warnings          []string           `json:"warnings"`
}
