package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energywatch/internal/analytics"
	"energywatch/internal/forecaster"
	"energywatch/internal/insights"
	"energywatch/internal/models"
)

const (
	defaultForecastDays = 3
	maxForecastDays     = 30
)

// EnergySource supplies normalized daily readings for a date range.
type EnergySource interface {
	FetchDailyReadings(ctx context.Context, from, to time.Time) ([]models.DailyReading, error)
}

// WeatherSource supplies observations keyed by calendar day.
type WeatherSource interface {
	FetchWeather(ctx context.Context, from, to time.Time) (map[string]models.WeatherObservation, error)
}

// TokenService manages bearer tokens for the metering platform.
type TokenService interface {
	Authenticate(ctx context.Context) (*models.AuthToken, error)
	Validate(ctx context.Context) bool
}

// Server is the HTTP boundary. It validates request input, delegates to the
// domain services and wraps every response in the standard envelope.
type Server struct {
	engine     *gin.Engine
	port       int
	energy     EnergySource
	weather    WeatherSource
	tokens     TokenService
	analytics  *analytics.Service
	forecaster *forecaster.Service
	insights   *insights.Service
}

func New(port int, energy EnergySource, weather WeatherSource, tokens TokenService, a *analytics.Service, f *forecaster.Service, i *insights.Service) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:     gin.New(),
		port:       port,
		energy:     energy,
		weather:    weather,
		tokens:     tokens,
		analytics:  a,
		forecaster: f,
		insights:   i,
	}

	s.engine.Use(gin.Logger())
	s.engine.Use(gin.Recovery())
	s.engine.Use(metricsMiddleware())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		energy := api.Group("/energy")
		{
			energy.GET("/data", s.handleEnergyData)
			energy.GET("/total", s.handleEnergyTotal)
			energy.GET("/average", s.handleEnergyAverage)
		}

		analyticsGroup := api.Group("/analytics")
		{
			analyticsGroup.GET("/summary", s.handleAnalyticsSummary)
			analyticsGroup.GET("/anomalies", s.handleAnomalies)
		}

		forecast := api.Group("/forecast")
		{
			forecast.GET("", s.handleForecast)
			forecast.GET("/predictions", s.handleForecastPredictions)
		}

		insightsGroup := api.Group("/insights")
		{
			insightsGroup.GET("", s.handleInsights)
			insightsGroup.GET("/type/:type", s.handleInsightsByType)
			insightsGroup.GET("/severity/:severity", s.handleInsightsBySeverity)
		}

		weatherGroup := api.Group("/weather")
		{
			weatherGroup.GET("/data", s.handleWeatherData)
			weatherGroup.GET("/date/:date", s.handleWeatherByDate)
		}

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/token", s.handleAuthToken)
			authGroup.GET("/validate", s.handleAuthValidate)
		}
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleEnergyData(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	readings, err := s.energy.FetchDailyReadings(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, readings)
}

func (s *Server) handleEnergyTotal(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	readings, err := s.energy.FetchDailyReadings(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	total := 0.0
	for _, r := range readings {
		total += r.ConsumptionKwh
	}
	respondOK(c, gin.H{
		"fromDate": models.DateKey(from),
		"toDate":   models.DateKey(to),
		"totalKwh": total,
		"days":     len(readings),
	})
}

func (s *Server) handleEnergyAverage(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	readings, err := s.energy.FetchDailyReadings(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	avg := 0.0
	if len(readings) > 0 {
		total := 0.0
		for _, r := range readings {
			total += r.ConsumptionKwh
		}
		avg = total / float64(len(readings))
	}
	respondOK(c, gin.H{
		"fromDate":        models.DateKey(from),
		"toDate":          models.DateKey(to),
		"averageDailyKwh": avg,
		"days":            len(readings),
	})
}

func (s *Server) handleAnalyticsSummary(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	summary, err := s.analytics.Analyze(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, summary)
}

func (s *Server) handleAnomalies(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	summary, err := s.analytics.Analyze(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	anomalies := make([]models.AnalyticsResult, 0)
	for _, r := range summary.DailyResults {
		if r.IsAnomaly {
			anomalies = append(anomalies, r)
		}
	}
	respondOK(c, anomalies)
}

func (s *Server) handleForecast(c *gin.Context) {
	from, days, ok := parseForecastParams(c)
	if !ok {
		return
	}

	summary, err := s.forecaster.Forecast(c.Request.Context(), from, days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, summary)
}

func (s *Server) handleForecastPredictions(c *gin.Context) {
	from, days, ok := parseForecastParams(c)
	if !ok {
		return
	}

	summary, err := s.forecaster.Forecast(c.Request.Context(), from, days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, summary.Forecasts)
}

func (s *Server) handleInsights(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	summary, err := s.insights.Generate(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, summary)
}

func (s *Server) handleInsightsByType(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	want := strings.ToLower(c.Param("type"))
	summary, err := s.insights.Generate(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	filtered := make([]models.InsightResult, 0)
	for _, i := range summary.Insights {
		if strings.ToLower(string(i.Type)) == want {
			filtered = append(filtered, i)
		}
	}
	respondOK(c, filtered)
}

func (s *Server) handleInsightsBySeverity(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	want := strings.ToLower(c.Param("severity"))
	switch want {
	case string(models.SeverityInfo), string(models.SeverityWarning), string(models.SeverityCritical):
	default:
		respondValidation(c, "severity must be one of: info, warning, critical")
		return
	}

	summary, err := s.insights.Generate(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	filtered := make([]models.InsightResult, 0)
	for _, i := range summary.Insights {
		if strings.ToLower(string(i.Severity)) == want {
			filtered = append(filtered, i)
		}
	}
	respondOK(c, filtered)
}

func (s *Server) handleWeatherData(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	observations, err := s.weather.FetchWeather(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, observations)
}

func (s *Server) handleWeatherByDate(c *gin.Context) {
	day, err := time.ParseInLocation(models.DateLayout, c.Param("date"), time.UTC)
	if err != nil {
		respondValidation(c, "date must be formatted as "+models.DateLayout)
		return
	}

	observations, err := s.weather.FetchWeather(c.Request.Context(), day, day)
	if err != nil {
		respondError(c, err)
		return
	}

	obs, found := observations[models.DateKey(day)]
	if !found {
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Message: "no weather data for " + c.Param("date"),
		})
		return
	}
	respondOK(c, obs)
}

func (s *Server) handleAuthToken(c *gin.Context) {
	tok, err := s.tokens.Authenticate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"tokenType": tok.TokenType,
		"expiresAt": tok.ExpiresAt,
	})
}

func (s *Server) handleAuthValidate(c *gin.Context) {
	valid := s.tokens.Validate(c.Request.Context())
	respondOK(c, gin.H{"valid": valid})
}

// parseDateRange reads the fromDate/toDate query parameters. Both are
// required, must be well formed and must not be inverted.
func parseDateRange(c *gin.Context) (from, to time.Time, ok bool) {
	fromStr := c.Query("fromDate")
	toStr := c.Query("toDate")
	if fromStr == "" || toStr == "" {
		respondValidation(c, "fromDate and toDate query parameters are required")
		return
	}

	from, err := time.ParseInLocation(models.DateLayout, fromStr, time.UTC)
	if err != nil {
		respondValidation(c, "fromDate must be formatted as "+models.DateLayout)
		return
	}
	to, err = time.ParseInLocation(models.DateLayout, toStr, time.UTC)
	if err != nil {
		respondValidation(c, "toDate must be formatted as "+models.DateLayout)
		return
	}
	if from.After(to) {
		respondValidation(c, "fromDate must not be after toDate")
		return
	}
	return from, to, true
}

// parseForecastParams reads the optional fromDate (default tomorrow, UTC)
// and days (default 3, capped at 30) query parameters.
func parseForecastParams(c *gin.Context) (from time.Time, days int, ok bool) {
	days = defaultForecastDays
	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 || parsed > maxForecastDays {
			respondValidation(c, fmt.Sprintf("days must be an integer between 1 and %d", maxForecastDays))
			return
		}
		days = parsed
	}

	if fromStr := c.Query("fromDate"); fromStr != "" {
		parsed, err := time.ParseInLocation(models.DateLayout, fromStr, time.UTC)
		if err != nil {
			respondValidation(c, "fromDate must be formatted as "+models.DateLayout)
			return
		}
		from = parsed
	} else {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	return from, days, true
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}

func respondValidation(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.APIResponse{
		Success: false,
		Message: "invalid request",
		Errors:  []string{message},
	})
}

// respondError maps domain errors to status codes: upstream collaborator
// failures surface as 502, anything else as 500.
func respondError(c *gin.Context, err error) {
	var upstream *models.UpstreamError
	if errors.As(err, &upstream) {
		log.Printf("Upstream failure: %v", err)
		c.JSON(http.StatusBadGateway, models.APIResponse{
			Success: false,
			Message: "upstream service failure",
			Errors:  []string{upstream.Error()},
		})
		return
	}

	log.Printf("Internal error: %v", err)
	c.JSON(http.StatusInternalServerError, models.APIResponse{
		Success: false,
		Message: "internal error",
		Errors:  []string{err.Error()},
	})
}
