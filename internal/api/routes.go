package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"loan-advisor/backend/internal/ai"
	"loan-advisor/backend/internal/catalog"
	"loan-advisor/backend/internal/model"
	"loan-advisor/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	CatalogPath    string
	ScalerPath     string
	ClassifierPath string
	AllowedOrigins []string
	SilentDB       bool
	AIConfig       ai.Config
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wires HTTP handlers with the model, catalog and recommendation pipeline. Everything
// it holds is loaded once and only read afterwards.
type Server struct {
	db             *store.Database
	predictor      *model.Predictor
	catalog        *catalog.Catalog
	recommender    *ai.Recommender
	llmModel       string
	allowedOrigins []string
	limiter        *rateLimiter
}

// NewServer loads model artifacts and the catalog and constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	scaler, err := model.LoadScaler(cfg.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	classifier, err := model.LoadClassifier(cfg.ClassifierPath)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"scaler":     cfg.ScalerPath,
		"classifier": cfg.ClassifierPath,
	}).Info("model artifacts loaded")

	var db *store.Database
	if path := strings.TrimSpace(cfg.DBPath); path != "" {
		db, err = store.Open(path, cfg.SilentDB)
		if err != nil {
			return nil, err
		}
	} else {
		logrus.Info("catalog mirror disabled - no database path configured")
	}

	cat, err := catalog.Load(cfg.CatalogPath, db)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("catalog: %w", err)
	}

	client, err := ai.NewClient(cfg.AIConfig)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("ai client: %w", err)
	}
	recommender, err := ai.NewRecommender(cat, client)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("recommender: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"model":   client.Model(),
		"timeout": client.Timeout(),
	}).Info("recommendation service configured")

	server := &Server{
		db:             db,
		predictor:      model.NewPredictor(scaler, classifier),
		catalog:        cat,
		recommender:    recommender,
		llmModel:       client.Model(),
		allowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.RateLimitRPS > 0 {
		server.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return server, nil
}

// Close releases the catalog mirror.
func (s *Server) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func closeDB(db *store.Database) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logrus.WithError(err).Warn("close catalog database")
	}
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowCredentials = true
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/", s.handleHealth)
	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/catalog", s.handleCatalog)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/predict", s.handlePredict)

	recommend := []gin.HandlerFunc{s.handleExploreLoans}
	if s.limiter != nil {
		recommend = append([]gin.HandlerFunc{s.limiter.limit()}, recommend...)
	}
	r.POST("/explore_loans", recommend...)
	r.POST("/recommend", recommend...)

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:         "ok",
		CatalogEntries: s.catalog.Len(),
		CatalogSource:  s.catalog.Source(),
		ModelLoaded:    s.predictor != nil,
		LLMModel:       s.llmModel,
	}
	if s.db != nil {
		stored, err := s.db.CountLoanProducts()
		if err != nil {
			requestLog(c).WithError(err).Warn("count stored catalog")
			resp.Status = "degraded"
		}
		resp.StoredEntries = stored
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCatalog(c *gin.Context) {
	loanType := strings.TrimSpace(c.Query("loan_type"))
	var (
		items    []catalog.Entry
		fallback bool
	)
	if loanType == "" {
		items = s.catalog.Entries()
	} else {
		items, fallback = s.catalog.Filter(loanType)
	}
	if items == nil {
		items = []catalog.Entry{}
	}
	websiteRates := 0
	for _, item := range items {
		if item.HasWebsiteRate() {
			websiteRates++
		}
	}
	c.JSON(http.StatusOK, CatalogResponse{
		LoanType:     loanType,
		Fallback:     fallback,
		Total:        len(items),
		WebsiteRates: websiteRates,
		Items:        items,
	})
}

func (s *Server) renderError(c *gin.Context, status int, title string, err error) {
	c.JSON(status, gin.H{"error": title, "message": err.Error()})
}
