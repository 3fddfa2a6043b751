package api

import (
	"loan-advisor/backend/internal/catalog"
	"loan-advisor/backend/internal/model"
)

// PredictResponse is the approval decision payload.
type PredictResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// HealthResponse reports readiness.
type HealthResponse struct {
	Status         string `json:"status"`
	CatalogEntries int    `json:"catalog_entries"`
	CatalogSource  string `json:"catalog_source"`
	StoredEntries  int64  `json:"stored_catalog_entries"`
	ModelLoaded    bool   `json:"model_loaded"`
	LLMModel       string `json:"llm_model"`
}

// CatalogResponse lists catalog entries for a loan type query.
type CatalogResponse struct {
	LoanType     string          `json:"loan_type"`
	Fallback     bool            `json:"fallback"`
	Total        int             `json:"total"`
	WebsiteRates int             `json:"website_rates"`
	Items        []catalog.Entry `json:"items"`
}

// ServiceErrorResponse reports a non-success answer from the recommendation service.
type ServiceErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// PredictFromDecision converts a model.Decision into the response shape.
func PredictFromDecision(d model.Decision) PredictResponse {
	return PredictResponse{
		Prediction: string(d.Label),
		Confidence: d.Confidence,
	}
}
