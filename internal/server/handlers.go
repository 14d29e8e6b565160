package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aristath/dart-ebitda/internal/domain"
)

// Accepted business years
const (
	MinYear = 2015
	MaxYear = 2030
)

const codeValidation = "VALIDATION_ERROR"

type companyInfo struct {
	CorpCode  string  `json:"corp_code"`
	CorpName  string  `json:"corp_name"`
	StockCode *string `json:"stock_code"`
}

type periodInfo struct {
	Year       int    `json:"year"`
	ReportCode string `json:"report_code"`
	ReportName string `json:"report_name"`
	FsDiv      string `json:"fs_div"`
	FsName     string `json:"fs_name"`
}

type componentAmount struct {
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type ebitdaComponents struct {
	OperatingIncome componentAmount `json:"operating_income"`
	Depreciation    componentAmount `json:"depreciation"`
	Amortization    componentAmount `json:"amortization"`
}

type ebitdaTotal struct {
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Basis    string  `json:"basis"`
}

type sourceInfo struct {
	ReceiptNo string    `json:"rcept_no"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
}

// EbitdaResponse is the body of GET /api/v1/ebitda
type EbitdaResponse struct {
	Company    companyInfo      `json:"company"`
	Period     periodInfo       `json:"period"`
	Components ebitdaComponents `json:"components"`
	Ebitda     ebitdaTotal      `json:"ebitda"`
	Source     sourceInfo       `json:"source"`
	Warnings   []string         `json:"warnings"`
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ebitdaParams are the validated query parameters of an EBITDA request
type ebitdaParams struct {
	company    string
	year       int
	reportCode domain.ReportCode
	fsDiv      domain.ConsolidationBasis
}

func parseEbitdaParams(r *http.Request) (ebitdaParams, error) {
	q := r.URL.Query()

	p := ebitdaParams{
		company:    strings.TrimSpace(q.Get("company")),
		reportCode: domain.ReportCode(q.Get("report_code")),
		fsDiv:      domain.ConsolidationBasis(q.Get("fs_div")),
	}
	if p.company == "" {
		return p, errors.New("company is required (company name or 6-digit stock code)")
	}

	rawYear := q.Get("year")
	if rawYear == "" {
		return p, errors.New("year is required")
	}
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return p, fmt.Errorf("year must be an integer, got %q", rawYear)
	}
	if year < MinYear || year > MaxYear {
		return p, fmt.Errorf("year must be between %d and %d, got %d", MinYear, MaxYear, year)
	}
	p.year = year

	if !p.reportCode.Valid() {
		return p, fmt.Errorf("report_code must be one of 11011, 11012, 11013, 11014, got %q", p.reportCode)
	}

	if p.fsDiv == "" {
		p.fsDiv = domain.Consolidated
	}
	if !p.fsDiv.Valid() {
		return p, fmt.Errorf("fs_div must be CFS or OFS, got %q", p.fsDiv)
	}

	return p, nil
}

// handleEbitda resolves the company and computes EBITDA for one filing
func (s *Server) handleEbitda(w http.ResponseWriter, r *http.Request) {
	params, err := parseEbitdaParams(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errorBody{
			Error:   codeValidation,
			Message: err.Error(),
		})
		return
	}

	company, err := s.resolver.Resolve(r.Context(), params.company)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.calculator.Calculate(r.Context(), company.CorpCode, params.year, params.reportCode, params.fsDiv)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newEbitdaResponse(company, result))
}

func newEbitdaResponse(company domain.CompanyRecord, result *domain.EbitdaResult) EbitdaResponse {
	currency := string(result.Currency)
	component := func(c domain.ComponentAmount) componentAmount {
		return componentAmount{Label: c.Label, Amount: c.Amount, Currency: currency}
	}

	var stockCode *string
	if company.Listed() {
		stockCode = company.StockCode
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return EbitdaResponse{
		Company: companyInfo{
			CorpCode:  company.CorpCode,
			CorpName:  company.Name,
			StockCode: stockCode,
		},
		Period: periodInfo{
			Year:       result.Year,
			ReportCode: string(result.ReportCode),
			ReportName: result.ReportName,
			FsDiv:      string(result.FsDiv),
			FsName:     result.ConsolidationName,
		},
		Components: ebitdaComponents{
			OperatingIncome: component(result.OperatingIncome),
			Depreciation:    component(result.Depreciation),
			Amortization:    component(result.Amortization),
		},
		Ebitda: ebitdaTotal{
			Total:    result.Total,
			Currency: currency,
			Basis:    result.Basis.Description(),
		},
		Source: sourceInfo{
			ReceiptNo: result.ReceiptNo,
			FetchedAt: result.FetchedAt,
			Cached:    result.FromCache,
		},
		Warnings: warnings,
	}
}

// handleRoot serves the service banner
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message":      "OPENDART EBITDA Calculator API",
		"version":      Version,
		"health_check": "/api/v1/health",
	})
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsRateLimited(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func isUpstreamFailure(err error) bool {
	var (
		ue *domain.UpstreamError
		te *domain.TransportError
		ie *domain.InvalidResponseError
		ee *domain.EmptyResponseError
		nf *domain.NotFoundError
	)
	return errors.As(err, &ue) || errors.As(err, &te) || errors.As(err, &ie) ||
		errors.As(err, &ee) || errors.As(err, &nf)
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var internal *domain.InternalError
	if !isUpstreamFailure(err) && !errors.As(err, &internal) {
		err = &domain.InternalError{Err: err}
	}

	status := statusFor(err)
	body := errorBody{
		Error:   domain.ErrorCode(err),
		Message: err.Error(),
		Detail:  "The OPENDART request could not be completed.",
	}

	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		body.Message = ue.Message
	}
	if !isUpstreamFailure(err) {
		body.Detail = "Internal server error."
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("EBITDA request failed")
	}

	s.writeError(w, r, status, body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = middleware.GetReqID(r.Context())
	s.writeJSON(w, status, body)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
