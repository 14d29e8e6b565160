package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/dart-ebitda/internal/corpcode"
	"github.com/aristath/dart-ebitda/internal/database"
	"github.com/aristath/dart-ebitda/internal/domain"
)

type fakeResolver struct {
	records map[string]domain.CompanyRecord
	err     error
	dir     *corpcode.Directory
	queries []string
}

func (f *fakeResolver) Resolve(_ context.Context, query string) (domain.CompanyRecord, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return domain.CompanyRecord{}, f.err
	}
	rec, ok := f.records[query]
	if !ok {
		return domain.CompanyRecord{}, &domain.NotFoundError{Query: query}
	}
	return rec, nil
}

func (f *fakeResolver) Current() *corpcode.Directory { return f.dir }

type calculateCall struct {
	corpCode   string
	year       int
	reportCode domain.ReportCode
	fsDiv      domain.ConsolidationBasis
}

type fakeCalculator struct {
	result *domain.EbitdaResult
	err    error
	calls  []calculateCall
}

func (f *fakeCalculator) Calculate(_ context.Context, corpCode string, year int, reportCode domain.ReportCode, fsDiv domain.ConsolidationBasis) (*domain.EbitdaResult, error) {
	f.calls = append(f.calls, calculateCall{corpCode, year, reportCode, fsDiv})
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCacheStats struct {
	stats *database.Stats
	err   error
}

func (f fakeCacheStats) Stats(context.Context) (*database.Stats, error) { return f.stats, f.err }

func samsung() domain.CompanyRecord {
	stock := "005930"
	return domain.CompanyRecord{CorpCode: "00126380", Name: "삼성전자", StockCode: &stock}
}

func sampleResult() *domain.EbitdaResult {
	return &domain.EbitdaResult{
		CorpCode:          "00126380",
		Year:              2023,
		ReportCode:        domain.ReportAnnual,
		ReportName:        domain.ReportAnnual.Name(),
		FsDiv:             domain.Consolidated,
		ConsolidationName: domain.Consolidated.Name(),
		OperatingIncome:   domain.ComponentAmount{Label: "영업이익", Amount: 1000, Currency: domain.CurrencyKRW, Found: true},
		Depreciation:      domain.ComponentAmount{Label: "감가상각비", Amount: 200, Currency: domain.CurrencyKRW, Found: true},
		Amortization:      domain.ComponentAmount{Label: "무형자산상각비", Amount: 50, Currency: domain.CurrencyKRW, Found: true},
		Total:             1250,
		Currency:          domain.CurrencyKRW,
		Basis:             domain.BasisPeriod,
		ReceiptNo:         "20240312000736",
		FetchedAt:         time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
		FromCache:         true,
	}
}

func newTestServer(resolver *fakeResolver, calc *fakeCalculator) *Server {
	return New(Config{
		Log:        zerolog.Nop(),
		Port:       0,
		DevMode:    true,
		Resolver:   resolver,
		Calculator: calc,
	})
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleEbitda_Success(t *testing.T) {
	resolver := &fakeResolver{records: map[string]domain.CompanyRecord{"삼성전자": samsung()}}
	calc := &fakeCalculator{result: sampleResult()}
	s := newTestServer(resolver, calc)

	rec := get(t, s, "/api/v1/ebitda?company=%EC%82%BC%EC%84%B1%EC%A0%84%EC%9E%90&year=2023&report_code=11011")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp EbitdaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "00126380", resp.Company.CorpCode)
	assert.Equal(t, "삼성전자", resp.Company.CorpName)
	require.NotNil(t, resp.Company.StockCode)
	assert.Equal(t, "005930", *resp.Company.StockCode)
	assert.Equal(t, 2023, resp.Period.Year)
	assert.Equal(t, "11011", resp.Period.ReportCode)
	assert.Equal(t, "CFS", resp.Period.FsDiv)
	assert.Equal(t, 1000.0, resp.Components.OperatingIncome.Amount)
	assert.Equal(t, "KRW", resp.Components.Amortization.Currency)
	assert.Equal(t, 1250.0, resp.Ebitda.Total)
	assert.Equal(t, domain.BasisPeriod.Description(), resp.Ebitda.Basis)
	assert.Equal(t, "20240312000736", resp.Source.ReceiptNo)
	assert.True(t, resp.Source.Cached)
	assert.NotNil(t, resp.Warnings)

	require.Len(t, calc.calls, 1)
	assert.Equal(t, calculateCall{"00126380", 2023, domain.ReportAnnual, domain.Consolidated}, calc.calls[0])
}

func TestHandleEbitda_PassesSeparateBasisAndTrimsCompany(t *testing.T) {
	resolver := &fakeResolver{records: map[string]domain.CompanyRecord{"005930": samsung()}}
	calc := &fakeCalculator{result: sampleResult()}
	s := newTestServer(resolver, calc)

	rec := get(t, s, "/api/v1/ebitda?company=+005930+&year=2024&report_code=11013&fs_div=OFS")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"005930"}, resolver.queries)
	require.Len(t, calc.calls, 1)
	assert.Equal(t, domain.ReportQ1, calc.calls[0].reportCode)
	assert.Equal(t, domain.Separate, calc.calls[0].fsDiv)
}

func TestHandleEbitda_UnlistedCompanyHasNullStockCode(t *testing.T) {
	empty := ""
	rec := domain.CompanyRecord{CorpCode: "00999999", Name: "비상장", StockCode: &empty}
	resolver := &fakeResolver{records: map[string]domain.CompanyRecord{"비상장": rec}}
	s := newTestServer(resolver, &fakeCalculator{result: sampleResult()})

	resp := get(t, s, "/api/v1/ebitda?company=%EB%B9%84%EC%83%81%EC%9E%A5&year=2023&report_code=11011")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"stock_code":null`)
}

func TestHandleEbitda_Validation(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		message string
	}{
		{"missing company", "year=2023&report_code=11011", "company is required"},
		{"blank company", "company=+&year=2023&report_code=11011", "company is required"},
		{"missing year", "company=x&report_code=11011", "year is required"},
		{"non-numeric year", "company=x&year=abc&report_code=11011", "year must be an integer"},
		{"year too early", "company=x&year=2014&report_code=11011", "between 2015 and 2030"},
		{"year too late", "company=x&year=2031&report_code=11011", "between 2015 and 2030"},
		{"bad report code", "company=x&year=2023&report_code=11015", "report_code must be one of"},
		{"missing report code", "company=x&year=2023", "report_code must be one of"},
		{"bad fs_div", "company=x&year=2023&report_code=11011&fs_div=XYZ", "fs_div must be CFS or OFS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			calc := &fakeCalculator{}
			s := newTestServer(resolver, calc)

			rec := get(t, s, "/api/v1/ebitda?"+tt.query)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decodeError(t, rec)
			assert.Equal(t, codeValidation, body.Error)
			assert.Contains(t, body.Message, tt.message)
			assert.NotEmpty(t, body.RequestID)
			assert.Empty(t, resolver.queries)
			assert.Empty(t, calc.calls)
		})
	}
}

func TestHandleEbitda_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		resolveErr  error
		calcErr     error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "unknown company",
			resolveErr:  &domain.NotFoundError{Query: "없는회사"},
			wantStatus:  http.StatusNotFound,
			wantCode:    domain.CodeNotFound,
			wantMessage: "없는회사",
		},
		{
			name:        "no filing",
			calcErr:     fmt.Errorf("get filing: %w", &domain.UpstreamError{Code: "013", Message: "no financial statements exist for the 2023 Annual report (Consolidated financial statements)"}),
			wantStatus:  http.StatusNotFound,
			wantCode:    "013",
			wantMessage: "no financial statements exist",
		},
		{
			name:        "rate limited",
			calcErr:     &domain.UpstreamError{Code: "020", Message: "Request limit exceeded"},
			wantStatus:  http.StatusTooManyRequests,
			wantCode:    "020",
			wantMessage: "Request limit exceeded",
		},
		{
			name:        "invalid key",
			resolveErr:  &domain.UpstreamError{Code: "010", Message: "Unregistered API key"},
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "010",
			wantMessage: "Unregistered API key",
		},
		{
			name:        "network failure",
			calcErr:     &domain.TransportError{Endpoint: "fnlttSinglAcntAll.json", Err: errors.New("connection refused")},
			wantStatus:  http.StatusInternalServerError,
			wantCode:    domain.CodeTransport,
			wantMessage: "connection refused",
		},
		{
			name:        "unexpected",
			calcErr:     errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    domain.CodeInternal,
			wantMessage: "internal error: boom",
		},
		{
			name:        "already internal",
			calcErr:     fmt.Errorf("calculate: %w", &domain.InternalError{Err: errors.New("bad state")}),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    domain.CodeInternal,
			wantMessage: "calculate: internal error: bad state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{
				records: map[string]domain.CompanyRecord{"x": samsung()},
				err:     tt.resolveErr,
			}
			calc := &fakeCalculator{err: tt.calcErr}
			s := newTestServer(resolver, calc)

			rec := get(t, s, "/api/v1/ebitda?company=x&year=2023&report_code=11011")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Contains(t, body.Message, tt.wantMessage)
			assert.NotEmpty(t, body.Detail)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
		})
	}
}

func TestHandleEbitda_UnclassifiedErrorIsInternal(t *testing.T) {
	resolver := &fakeResolver{records: map[string]domain.CompanyRecord{"x": samsung()}}
	s := newTestServer(resolver, &fakeCalculator{err: errors.New("disk full")})

	rec := get(t, s, "/api/v1/ebitda?company=x&year=2023&report_code=11011")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, domain.CodeInternal, body.Error)
	assert.Equal(t, "internal error: disk full", body.Message)
	assert.Equal(t, "Internal server error.", body.Detail)
}

func TestRequestID_EchoesIncomingHeader(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ebitda", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-123", decodeError(t, rec).RequestID)
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeCalculator{})

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "/api/v1/health", body["health_check"])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeCalculator{})

	rec := get(t, s, "/api/v2/ebitda")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", decodeError(t, rec).Error)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeCalculator{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ebitda", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
