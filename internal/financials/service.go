package financials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/dart-ebitda/internal/clientdata"
	"github.com/aristath/dart-ebitda/internal/clients/dart"
	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/rs/zerolog"
)

const statementsEndpoint = "fnlttSinglAcntAll"

// StatementFetcher fetches a filing's statements from the upstream.
type StatementFetcher interface {
	FinancialStatements(ctx context.Context, q dart.StatementQuery) (*dart.StatementResponse, error)
}

// FilingCache stores cleaned filings by call signature.
type FilingCache interface {
	Get(ctx context.Context, sig clientdata.Signature, dst any) (bool, error)
	Set(ctx context.Context, sig clientdata.Signature, value any, ttl time.Duration) error
}

// FilingRequest selects one filing.
type FilingRequest struct {
	CorpCode   string
	Year       int
	ReportCode domain.ReportCode
	FsDiv      domain.ConsolidationBasis
}

// Signature is the cache signature of the upstream call serving req.
func (r FilingRequest) Signature() clientdata.Signature {
	return clientdata.NewSignature(statementsEndpoint, r.CorpCode, r.Year, string(r.ReportCode), string(r.FsDiv))
}

// Service serves filings cache-first.
type Service struct {
	api   StatementFetcher
	cache FilingCache
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewService creates a filing service. cache may be nil, which disables caching.
func NewService(api StatementFetcher, cache FilingCache, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		api:   api,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
		log:   log.With().Str("component", "financials").Logger(),
	}
}

// GetFiling returns the requested filing from the cache, or fetches and caches it.
func (s *Service) GetFiling(ctx context.Context, req FilingRequest) (*Filing, error) {
	sig := req.Signature()

	if filing, ok := s.getFromCache(ctx, sig); ok {
		s.log.Debug().Str("corp_code", req.CorpCode).Int("year", req.Year).Msg("Filing cache hit")
		return filing, nil
	}

	resp, err := s.api.FinancialStatements(ctx, dart.StatementQuery{
		CorpCode:   req.CorpCode,
		Year:       req.Year,
		ReportCode: req.ReportCode,
		FsDiv:      req.FsDiv,
	})
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) && upstream.Code == domain.StatusNoData {
			return nil, &domain.UpstreamError{
				Code: domain.StatusNoData,
				Message: fmt.Sprintf("no financial statements exist for the %d %s (%s)",
					req.Year, req.ReportCode.Name(), req.FsDiv.Name()),
			}
		}
		return nil, err
	}

	if !resp.HasList() {
		return nil, &domain.InvalidResponseError{Reason: "financial statement payload has no list"}
	}

	filing := newFiling(req, resp, s.now())
	s.setCache(ctx, sig, filing)
	return filing, nil
}

func (s *Service) getFromCache(ctx context.Context, sig clientdata.Signature) (*Filing, bool) {
	if s.cache == nil {
		return nil, false
	}

	var filing Filing
	found, err := s.cache.Get(ctx, sig, &filing)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read filing from cache")
		return nil, false
	}
	if !found {
		return nil, false
	}

	filing.FromCache = true
	return &filing, true
}

func (s *Service) setCache(ctx context.Context, sig clientdata.Signature, filing *Filing) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, sig, filing, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("corp_code", filing.CorpCode).Msg("Failed to cache filing")
	}
}
