package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"loan-advisor/backend/internal/ai"
	"loan-advisor/backend/internal/applicant"
	"loan-advisor/backend/internal/metrics"
	"loan-advisor/backend/internal/model"
)

const maxBodyBytes = 1 << 20

// readProfile decodes and validates the applicant in the request body. On failure it has
// already written a 400 response.
func (s *Server) readProfile(c *gin.Context) (applicant.Profile, applicant.FeatureVector, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, "Invalid input", fmt.Errorf("read request body: %w", err))
		return applicant.Profile{}, nil, false
	}
	profile, err := applicant.Parse(body)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, "Invalid input", err)
		return applicant.Profile{}, nil, false
	}
	vector, err := applicant.Extract(profile)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, "Invalid input", err)
		return applicant.Profile{}, nil, false
	}
	return profile, vector, true
}

func (s *Server) handlePredict(c *gin.Context) {
	_, vector, ok := s.readProfile(c)
	if !ok {
		return
	}

	decision, err := s.predictor.Predict(vector)
	if err != nil {
		metrics.PredictionErrors.Inc()
		var inferenceErr *model.ModelInferenceError
		if errors.As(err, &inferenceErr) {
			requestLog(c).WithError(err).WithField("op", inferenceErr.Op).Error("model inference failed")
		}
		s.renderError(c, http.StatusInternalServerError, "Prediction failed", err)
		return
	}

	metrics.RecordPrediction(string(decision.Label))
	requestLog(c).WithFields(logrus.Fields{
		"prediction": decision.Label,
		"confidence": decision.Confidence,
	}).Debug("approval decision")
	c.JSON(http.StatusOK, PredictFromDecision(decision))
}

func (s *Server) handleExploreLoans(c *gin.Context) {
	profile, _, ok := s.readProfile(c)
	if !ok {
		return
	}

	result, err := s.recommender.Recommend(c.Request.Context(), profile)
	if err != nil {
		var serviceErr *ai.ServiceUnavailableError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusBadGateway, ServiceErrorResponse{
				Error:  "Recommendation service returned an error",
				Status: serviceErr.StatusCode,
			})
			return
		}
		s.renderError(c, http.StatusServiceUnavailable, "Failed to connect to the recommendation service", err)
		return
	}

	c.JSON(http.StatusOK, result.Body())
}
