package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-advisor/backend/internal/ai"
)

const approvedProfile = `{
	"no_of_dependents": 2,
	"education": 1,
	"self_employed": 0,
	"income_annum": 500000,
	"loan_amount": 1000000,
	"loan_term": 12,
	"cibil_score": 750,
	"residential_assets_value": 200000,
	"commercial_assets_value": 100000,
	"luxury_assets_value": 50000,
	"bank_asset_value": 300000,
	"loan_type": "home"
}`

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	handle  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	f.handle(w, r)
}

func (f *fakeLLM) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func respondWith(text string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		payload, _ := json.Marshal(map[string]any{"model": "test", "response": text, "done": true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

type testEnv struct {
	router *gin.Engine
	llm    *fakeLLM
}

func newTestEnv(t *testing.T, handle func(http.ResponseWriter, *http.Request), mutate func(*Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	llm := &fakeLLM{handle: handle}
	llmServer := httptest.NewServer(llm)
	t.Cleanup(llmServer.Close)

	cfg := Config{
		DBPath:         filepath.Join(t.TempDir(), "catalog.db"),
		CatalogPath:    filepath.Join("..", "catalog", "testdata", "loans.csv"),
		ScalerPath:     filepath.Join("..", "model", "testdata", "scaler.json"),
		ClassifierPath: filepath.Join("..", "model", "testdata", "logistic.json"),
		SilentDB:       true,
		AIConfig: ai.Config{
			URL:     llmServer.URL + "/api/generate",
			Model:   "test",
			Timeout: 2 * time.Second,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	router, err := server.Router()
	require.NoError(t, err)
	return &testEnv{router: router, llm: llm}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPredictScenarios(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)

	rec := env.do(http.MethodPost, "/predict", approvedProfile)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.Equal(t, "Approved", approved.Prediction)
	assert.Greater(t, approved.Confidence, 0.5)
	assert.LessOrEqual(t, approved.Confidence, 1.0)

	rejectedBody := strings.Replace(approvedProfile, `"cibil_score": 750`, `"cibil_score": 400`, 1)
	rec = env.do(http.MethodPost, "/predict", rejectedBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	assert.Equal(t, "Rejected", rejected.Prediction)
	assert.Greater(t, rejected.Confidence, 0.5, "confidence describes the predicted class")

	assert.Empty(t, env.llm.calls(), "approval never calls the generative service")
}

func TestPredictIsDeterministic(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)
	first := env.do(http.MethodPost, "/predict", approvedProfile)
	second := env.do(http.MethodPost, "/predict", approvedProfile)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing field", strings.Replace(approvedProfile, `"cibil_score": 750,`, "", 1), "cibil_score"},
		{"non numeric", strings.Replace(approvedProfile, `"income_annum": 500000`, `"income_annum": "lots"`, 1), "income_annum"},
		{"negative", strings.Replace(approvedProfile, `"loan_amount": 1000000`, `"loan_amount": -1`, 1), "loan_amount"},
		{"flag out of range", strings.Replace(approvedProfile, `"self_employed": 0`, `"self_employed": 2`, 1), "self_employed"},
		{"not json", "income=5", "JSON object"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/predict", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "Invalid input", body["error"])
			assert.Contains(t, body["message"], tc.message)
		})
	}
}

func TestExploreLoansReturnsParsedRecommendations(t *testing.T) {
	answer := "```json\n" + `{"loans": [{"bank_name": "HDFC Bank", "loan_type": "Home Loan", "max_amount": "10 Crore",
		"repayment_time": "30 years", "interest_rate": "See website", "rating": 9, "reason": "Fits the term.",
		"link": "https://hdfc.example/home"}]}` + "\n```"
	env := newTestEnv(t, respondWith(answer), nil)

	rec := env.do(http.MethodPost, "/explore_loans", approvedProfile)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var set ai.RecommendationSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Loans, 1)
	assert.Equal(t, "HDFC Bank", set.Loans[0].BankName.String())
	assert.Equal(t, "9", set.Loans[0].Rating.String())
	require.NotNil(t, set.Loans[0].Link)

	prompts := env.llm.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "ICICI Bank")
	assert.NotContains(t, prompts[0], "Axis Bank", "only home loans are sent for a home query")
}

func TestRecommendAliasDegradesMalformedText(t *testing.T) {
	raw := "Sure! Here are some loans: ..."
	env := newTestEnv(t, respondWith(raw), nil)

	rec := env.do(http.MethodPost, "/recommend", approvedProfile)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, raw, body["raw_response"])
	assert.Equal(t, ai.UnparsedNote, body["note"])
	assert.NotContains(t, body, "loans")
}

func TestExploreLoansTimeout(t *testing.T) {
	block := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}
	env := newTestEnv(t, block, func(cfg *Config) {
		cfg.AIConfig.Timeout = 100 * time.Millisecond
	})

	start := time.Now()
	rec := env.do(http.MethodPost, "/explore_loans", approvedProfile)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to connect to the recommendation service", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExploreLoansServiceError(t *testing.T) {
	fail := func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}
	env := newTestEnv(t, fail, nil)

	rec := env.do(http.MethodPost, "/explore_loans", approvedProfile)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body ServiceErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Recommendation service returned an error", body.Error)
	assert.Equal(t, http.StatusInternalServerError, body.Status)
	assert.Len(t, env.llm.calls(), 1, "no retry")
}

func TestExploreLoansValidatesBeforeCalling(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)

	rec := env.do(http.MethodPost, "/explore_loans", `{"loan_type": "home"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.llm.calls())
}

func TestExploreLoansRateLimited(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), func(cfg *Config) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 1
	})

	first := env.do(http.MethodPost, "/explore_loans", approvedProfile)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(http.MethodPost, "/recommend", approvedProfile)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, env.llm.calls(), 1)

	predict := env.do(http.MethodPost, "/predict", approvedProfile)
	assert.Equal(t, http.StatusOK, predict.Code, "approval is not rate limited")
}

func TestHealthAndCatalog(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)

	for _, path := range []string{"/", "/api/healthz"} {
		rec := env.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, 10, health.CatalogEntries)
		assert.True(t, health.ModelLoaded)
		assert.Equal(t, "test", health.LLMModel)
		assert.EqualValues(t, 10, health.StoredEntries)
	}

	rec := env.do(http.MethodGet, "/api/catalog?loan_type=home", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var home CatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &home))
	assert.Equal(t, 3, home.Total)
	assert.Equal(t, 1, home.WebsiteRates)
	assert.False(t, home.Fallback)

	rec = env.do(http.MethodGet, "/api/catalog", "")
	var all CatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 10, all.Total)
	assert.Equal(t, 3, all.WebsiteRates)
	assert.False(t, all.Fallback)

	rec = env.do(http.MethodGet, "/api/catalog?loan_type=crypto", "")
	var fallback CatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fallback))
	assert.Equal(t, 10, fallback.Total)
	assert.True(t, fallback.Fallback)
}

func TestRequestIDAndMetrics(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"loans": []}`), nil)

	rec := env.do(http.MethodGet, "/api/healthz", "")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set(requestIDHeader, "6f1c2b8e-7d4a-4a39-9a57-0d2c1b7e9f10")
	echoed := httptest.NewRecorder()
	env.router.ServeHTTP(echoed, req)
	assert.Equal(t, "6f1c2b8e-7d4a-4a39-9a57-0d2c1b7e9f10", echoed.Header().Get(requestIDHeader))

	env.do(http.MethodPost, "/predict", approvedProfile)
	metrics := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "loan_predictions_total")
}

func TestNewServerFailsWithoutArtifacts(t *testing.T) {
	_, err := NewServer(Config{
		ScalerPath:     filepath.Join(t.TempDir(), "missing.json"),
		ClassifierPath: filepath.Join("..", "model", "testdata", "logistic.json"),
	})
	require.Error(t, err)

	_, err = NewServer(Config{
		ScalerPath:     filepath.Join("..", "model", "testdata", "scaler.json"),
		ClassifierPath: filepath.Join("..", "model", "testdata", "logistic.json"),
		CatalogPath:    filepath.Join(t.TempDir(), "missing.csv"),
	})
	require.Error(t, err)
}
