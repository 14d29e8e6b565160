// Package financials retrieves single-company filings and extracts line items from them.
package financials

import (
	"strings"
	"time"

	"github.com/aristath/dart-ebitda/internal/clients/dart"
	"github.com/aristath/dart-ebitda/internal/domain"
)

// RawAccount is one line item as filed, kept close to the upstream shape so
// cached filings survive changes to the extraction rules.
type RawAccount struct {
	StatementDiv     string  `msgpack:"sj_div"`
	StatementName    string  `msgpack:"sj_nm"`
	AccountID        string  `msgpack:"account_id"`
	AccountName      string  `msgpack:"account_nm"`
	PeriodAmount     *string `msgpack:"thstrm_amount"`
	CumulativeAmount *string `msgpack:"thstrm_add_amount"`
	Currency         string  `msgpack:"currency"`
	ReceiptNo        string  `msgpack:"rcept_no"`
	Order            string  `msgpack:"ord"`
}

// Filing is the cleaned statement set of one filing. It is what the cache stores.
type Filing struct {
	CorpCode   string                    `msgpack:"corp_code"`
	Year       int                       `msgpack:"year"`
	ReportCode domain.ReportCode         `msgpack:"report_code"`
	FsDiv      domain.ConsolidationBasis `msgpack:"fs_div"`
	ReportName string                    `msgpack:"report_name"`
	FsName     string                    `msgpack:"fs_name"`
	ReceiptNo  string                    `msgpack:"rcept_no"`
	FetchedAt  time.Time                 `msgpack:"fetched_at"`
	Lines      []RawAccount              `msgpack:"accounts"`

	// FromCache is set on filings served from the cache; it is never stored.
	FromCache bool `msgpack:"-"`
}

func newFiling(req FilingRequest, resp *dart.StatementResponse, fetchedAt time.Time) *Filing {
	items := resp.Items()
	accounts := make([]RawAccount, 0, len(items))
	for _, item := range items {
		accounts = append(accounts, RawAccount{
			StatementDiv:     item.StatementDiv,
			StatementName:    item.StatementName,
			AccountID:        item.AccountID,
			AccountName:      item.AccountName,
			PeriodAmount:     item.CurrentTermAmount,
			CumulativeAmount: item.CurrentTermAddAmount,
			Currency:         item.Currency,
			ReceiptNo:        item.ReceiptNo,
			Order:            item.Order,
		})
	}

	receiptNo := resp.ReceiptNo
	if receiptNo == "" && len(items) > 0 {
		receiptNo = items[0].ReceiptNo
	}

	return &Filing{
		CorpCode:   req.CorpCode,
		Year:       req.Year,
		ReportCode: req.ReportCode,
		FsDiv:      req.FsDiv,
		ReportName: req.ReportCode.Name(),
		FsName:     req.FsDiv.Name(),
		ReceiptNo:  receiptNo,
		FetchedAt:  fetchedAt,
		Lines:      accounts,
	}
}

// Accounts converts the raw line items into domain accounts.
func (f *Filing) Accounts() []domain.FinancialAccount {
	out := make([]domain.FinancialAccount, 0, len(f.Lines))
	for _, raw := range f.Lines {
		currency := domain.Currency(raw.Currency)
		if currency == "" {
			currency = domain.CurrencyKRW
		}
		out = append(out, domain.FinancialAccount{
			Name:             raw.AccountName,
			Section:          domain.SectionFromCode(raw.StatementDiv),
			PeriodAmount:     raw.PeriodAmount,
			CumulativeAmount: raw.CumulativeAmount,
			Currency:         currency,
		})
	}
	return out
}

// BySection keeps the accounts of one statement section, in order.
func BySection(accounts []domain.FinancialAccount, section domain.StatementSection) []domain.FinancialAccount {
	var out []domain.FinancialAccount
	for _, account := range accounts {
		if account.Section == section {
			out = append(out, account)
		}
	}
	return out
}

// FindByKeywords returns the first account whose name contains any of the
// keywords, ignoring case. Accounts are scanned in order; the keyword list
// only decides whether an account matches.
func FindByKeywords(accounts []domain.FinancialAccount, keywords []string) (domain.FinancialAccount, bool) {
	for _, account := range accounts {
		name := strings.ToLower(account.Name)
		for _, keyword := range keywords {
			if strings.Contains(name, strings.ToLower(keyword)) {
				return account, true
			}
		}
	}
	return domain.FinancialAccount{}, false
}
