package financials

import (
	"testing"

	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func str(s string) *string { return &s }

func account(name string, section domain.StatementSection) domain.FinancialAccount {
	return domain.FinancialAccount{Name: name, Section: section, Currency: domain.CurrencyKRW}
}

func TestFilingAccounts(t *testing.T) {
	filing := &Filing{Lines: []RawAccount{
		{StatementDiv: "IS", AccountName: "영업이익", PeriodAmount: str("1,000"), Currency: "KRW"},
		{StatementDiv: "CF", AccountName: "감가상각비", CumulativeAmount: str("200")},
		{StatementDiv: "CIS", AccountName: "총포괄손익"},
		{StatementDiv: "BS", AccountName: "자산총계", Currency: "USD"},
	}}

	accounts := filing.Accounts()
	require.Len(t, accounts, 4)

	assert.Equal(t, domain.SectionIncomeStatement, accounts[0].Section)
	assert.Equal(t, "1,000", *accounts[0].PeriodAmount)
	assert.Nil(t, accounts[0].CumulativeAmount)

	assert.Equal(t, domain.SectionCashFlow, accounts[1].Section)
	assert.Equal(t, domain.CurrencyKRW, accounts[1].Currency, "missing currency defaults to KRW")

	assert.Equal(t, domain.SectionOther, accounts[2].Section)
	assert.Equal(t, domain.Currency("USD"), accounts[3].Currency)
}

func TestFilingEncodesLinesAsAccounts(t *testing.T) {
	filing := &Filing{
		CorpCode:  "00126380",
		FromCache: true,
		Lines: []RawAccount{
			{StatementDiv: "IS", AccountName: "영업이익", PeriodAmount: str("1,000")},
		},
	}

	encoded, err := msgpack.Marshal(filing)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(encoded, &raw))
	assert.Contains(t, raw, "accounts")
	assert.NotContains(t, raw, "FromCache")

	var decoded Filing
	require.NoError(t, msgpack.Unmarshal(encoded, &decoded))
	assert.Equal(t, filing.Lines, decoded.Lines)
	assert.False(t, decoded.FromCache)
	require.Len(t, decoded.Accounts(), 1)
	assert.Equal(t, "영업이익", decoded.Accounts()[0].Name)
}

func TestBySection(t *testing.T) {
	accounts := []domain.FinancialAccount{
		account("a", domain.SectionIncomeStatement),
		account("b", domain.SectionCashFlow),
		account("c", domain.SectionIncomeStatement),
	}

	is := BySection(accounts, domain.SectionIncomeStatement)
	require.Len(t, is, 2)
	assert.Equal(t, "a", is[0].Name)
	assert.Equal(t, "c", is[1].Name)

	assert.Empty(t, BySection(accounts, domain.SectionBalanceSheet))
}

func TestFindByKeywords_FirstAccountWins(t *testing.T) {
	accounts := []domain.FinancialAccount{
		account("유형자산감가상각비", domain.SectionCashFlow),
		account("감가상각비", domain.SectionCashFlow),
	}

	// The second keyword matches the first account, which beats the exact
	// match on the first keyword further down the list.
	found, ok := FindByKeywords(accounts, []string{"감가상각비", "유형자산상각비"})
	require.True(t, ok)
	assert.Equal(t, "유형자산감가상각비", found.Name)
}

func TestFindByKeywords_CaseInsensitive(t *testing.T) {
	accounts := []domain.FinancialAccount{account("Operating Profit (Loss)", domain.SectionIncomeStatement)}

	found, ok := FindByKeywords(accounts, []string{"operating profit"})
	require.True(t, ok)
	assert.Equal(t, "Operating Profit (Loss)", found.Name)
}

func TestFindByKeywords_NoMatch(t *testing.T) {
	_, ok := FindByKeywords([]domain.FinancialAccount{account("매출액", domain.SectionIncomeStatement)}, []string{"영업이익"})
	assert.False(t, ok)

	_, ok = FindByKeywords(nil, []string{"영업이익"})
	assert.False(t, ok)
}
