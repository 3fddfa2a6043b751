package ai

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"loan-advisor/backend/internal/applicant"
	"loan-advisor/backend/internal/catalog"
	"loan-advisor/backend/internal/metrics"
	"loan-advisor/backend/internal/util"
)

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recommender runs the recommendation pipeline for one applicant.
type Recommender struct {
	catalog   *catalog.Catalog
	generator Generator
}

// NewRecommender wires the catalog and generator. Both are shared read-only across requests.
func NewRecommender(cat *catalog.Catalog, generator Generator) (*Recommender, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, catalog.ErrNoCatalog
	}
	if generator == nil {
		return nil, errors.New("generator required")
	}
	return &Recommender{catalog: cat, generator: generator}, nil
}

// Recommend filters the catalog by the profile's loan type, asks the generator to rank the
// candidates and normalizes its answer. The only errors are *TransportError and
// *ServiceUnavailableError; unreadable output is reported through Result.Unparsed.
func (r *Recommender) Recommend(ctx context.Context, profile applicant.Profile) (Result, error) {
	entries, fallback := r.catalog.Filter(profile.LoanType)
	if fallback {
		metrics.CatalogFilterFallbacks.Inc()
	}
	log := logrus.WithFields(logrus.Fields{
		"loan_type":       profile.LoanType,
		"matched_entries": len(entries),
		"filter_fallback": fallback,
	})

	prompt := Synthesize(profile, entries)

	timer := util.StartTimer()
	raw, err := r.generator.Generate(ctx, prompt)
	elapsed := timer.Elapsed()
	log = log.WithField("duration_ms", timer.ElapsedMs())
	if err != nil {
		var serviceErr *ServiceUnavailableError
		if errors.As(err, &serviceErr) {
			metrics.RecordRecommendation(metrics.OutcomeServiceError, elapsed)
			log.WithField("status", serviceErr.StatusCode).Warn("recommendation service returned an error")
			return Result{}, err
		}
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			err = &TransportError{Cause: err}
			errors.As(err, &transportErr)
		}
		metrics.RecordRecommendation(metrics.OutcomeTransportError, elapsed)
		log.WithError(err).WithField("timeout", transportErr.Timeout()).Warn("recommendation service unreachable")
		return Result{}, err
	}

	result, parseErr := normalize(raw)
	if parseErr != nil {
		metrics.RecordRecommendation(metrics.OutcomeDegraded, elapsed)
		log.WithError(parseErr).WithField("response_chars", len(raw)).Warn("recommendation response unparsed")
		return result, nil
	}
	metrics.RecordRecommendation(metrics.OutcomeParsed, elapsed)
	log.WithField("recommendations", len(result.Set.Loans)).Info("recommendations generated")
	return result, nil
}
