package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/car-finder/internal/auth"
	"github.com/david/car-finder/internal/db"
	"github.com/david/car-finder/internal/deals"
	"github.com/david/car-finder/internal/ingest"
	"github.com/david/car-finder/internal/models"
	"github.com/david/car-finder/internal/search"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Search      *search.Service
	Deals       *deals.Service
	Pipeline    *ingest.Pipeline
	Echo        *echo.Echo
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(store *db.Store, authService *auth.Service, searchService *search.Service, dealService *deals.Service, pipeline *ingest.Pipeline) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:3000"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Store:       store,
		AuthService: authService,
		Search:      searchService,
		Deals:       dealService,
		Pipeline:    pipeline,
		Echo:        e,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	// Public storefront
	api.GET("/cars", s.handleSearchCars)
	api.GET("/cars/:id", s.handleGetCar)
	api.GET("/filters", s.handleGetFilters)
	api.GET("/stats", s.handleGetStats)
	api.POST("/leads/availability", s.handleLead("availability"))
	api.POST("/leads/photos", s.handleLead("photos"))

	// Auth
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Customer deal flow
	me := api.Group("/me")
	me.Use(auth.Middleware)
	me.GET("/selection", s.handleSelectionStatus)
	me.POST("/selection/:listingId/toggle", s.handleToggleSelection)
	me.POST("/deal-request", s.handleSubmitDealRequest)
	me.GET("/deal-request/status", s.handleSelectionStatus)

	// Admin (feed ingestion)
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/ingest/source/:id", s.handleIngestSource)
	admin.POST("/ingest/all", s.handleIngestAll)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// criteriaParams are the query parameters fed to the filter normalizer.
var criteriaParams = []string{
	"q", "make", "model", "state", "condition", "bodyType",
	"fuelType", "minPrice", "maxPrice", "zip", "radius",
}

func (s *Server) handleSearchCars(c echo.Context) error {
	raw := make(map[string]string, len(criteriaParams))
	for _, key := range criteriaParams {
		if v := c.QueryParam(key); v != "" {
			raw[key] = v
		}
	}
	criteria := search.ParseCriteria(raw)

	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		page = p
	}
	pageSize := 0 // service default
	if ps, err := strconv.Atoi(c.QueryParam("pageSize")); err == nil && ps > 0 && ps <= 100 {
		pageSize = ps
	}

	view, err := s.Search.SearchPage(c.Request().Context(), criteria, page, pageSize)
	if err != nil {
		if errors.Is(err, search.ErrUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"error":     "Search is temporarily unavailable",
				"retryable": true,
			})
		}
		c.Logger().Errorf("search failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetCar(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
	}
	listing, err := s.Store.GetListing(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, listing)
}

func (s *Server) handleGetFilters(c echo.Context) error {
	aggs, err := s.Store.GetAggregations(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, aggs)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// Auth

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

// Customer deal flow

func (s *Server) handleSelectionStatus(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	status, err := s.Deals.Status(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("selection status: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleToggleSelection(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	listingID, err := uuid.Parse(c.Param("listingId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
	}

	status, err := s.Deals.Toggle(c.Request().Context(), userID, listingID)
	if err != nil {
		var rej *deals.RejectionError
		if errors.As(err, &rej) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error":    rej.Error(),
				"reason":   rej.Reason,
				"max_cars": rej.MaxCars,
				"selected": rej.Existing + rej.Pending,
			})
		}
		c.Logger().Errorf("toggle selection: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleSubmitDealRequest(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	dealID, err := s.Deals.Submit(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, deals.ErrNothingSelected) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Select at least one vehicle first"})
		}
		c.Logger().Errorf("submit deal request: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusCreated, map[string]string{"deal_id": dealID.String()})
}

// Leads

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type leadRequest struct {
	ListingID string `json:"listing_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Zip       string `json:"zip"`
	Comments  string `json:"comments"`
}

func (s *Server) handleLead(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req leadRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}

		if strings.TrimSpace(req.FirstName) == "" || !emailPattern.MatchString(req.Email) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "A name and a valid email are required"})
		}

		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid listing ID"})
		}
		listing, err := s.Store.GetListing(c.Request().Context(), listingID)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Listing not found"})
		}

		lead := models.Lead{
			Kind:      kind,
			ListingID: listing.ID,
			DealerID:  listing.DealerID,
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Email:     strings.TrimSpace(req.Email),
			Phone:     strings.TrimSpace(req.Phone),
			Zip:       search.NormalizeZip(req.Zip),
			Comments:  strings.TrimSpace(req.Comments),
		}

		id, err := s.Store.CreateLead(c.Request().Context(), lead)
		if err != nil {
			c.Logger().Errorf("create %s lead: %v", kind, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		}

		return c.JSON(http.StatusCreated, map[string]string{"lead_id": id.String()})
	}
}

// Admin ingestion

func (s *Server) handleIngestSource(c echo.Context) error {
	sourceID := c.Param("id")

	stats, err := s.Pipeline.RunSource(c.Request().Context(), sourceID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
			"stats": stats,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%s ingestion complete", sourceID),
		"stats":   stats,
	})
}

func (s *Server) handleIngestAll(c echo.Context) error {
	stats := s.Pipeline.RunAll(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "All feed sources ingested",
		"stats":   stats,
	})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
