// Package gateway provides the ChatHub gateway server.
// It exposes the unified HTTP and WebSocket chat API and dispatches requests
// to the registered providers.
package gateway

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/chathub/chathub/internal/browser"
	"github.com/chathub/chathub/internal/config"
	"github.com/chathub/chathub/internal/provider"
	"github.com/chathub/chathub/internal/provider/openaiapi"
	"github.com/chathub/chathub/internal/provider/webchat"
	"github.com/chathub/chathub/internal/session"
)

// Server represents the ChatHub gateway server.
type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	logger   zerolog.Logger
	registry *provider.Registry
	sessions *session.Manager

	// Runtime state
	mu        sync.RWMutex
	running   bool
	startTime time.Time

	// Health probe cache, refreshed by the maintenance cron
	healthMu sync.RWMutex
	health   map[string]bool

	maint *maintenance
}

// New creates a new gateway server.
func New(cfg *config.Config) *Server {
	// Use standard JSON logger to avoid terminal compatibility issues with ConsoleWriter
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "gateway").Logger()
	if cfg.Logging.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewCustomValidator()

	s := &Server{
		cfg:      cfg,
		echo:     e,
		logger:   logger,
		registry: provider.NewRegistry(),
		sessions: session.NewManager(cfg.Session.TTL(), logger),
		health:   make(map[string]bool),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Registry exposes the provider registry, mainly for provider wiring.
func (s *Server) Registry() *provider.Registry { return s.registry }

// BuildProviders constructs providers from the configuration and registers
// them. User selector profiles override the built-in ones.
func (s *Server) BuildProviders() error {
	userProfiles, err := webchat.LoadProfileDir(config.ProfilesDir())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load user profiles")
		userProfiles = map[string]webchat.Profile{}
	}

	// Stable registration order so the implicit default is deterministic.
	names := make([]string, 0, len(s.cfg.Providers))
	for name := range s.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := s.cfg.Providers[name]
		p, err := s.buildProvider(name, pc, userProfiles)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		if err := s.registry.Register(p, pc.Default); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) buildProvider(name string, pc config.ProviderConfig, userProfiles map[string]webchat.Profile) (provider.Provider, error) {
	switch pc.Type {
	case config.ProviderTypeAPI:
		return openaiapi.New(name, openaiapi.Options{
			APIKey:            pc.APIKey,
			BaseURL:           pc.BaseURL,
			Model:             pc.Model,
			Temperature:       pc.Temperature,
			MaxTokens:         pc.MaxTokens,
			RequestsPerMinute: pc.RequestsPerMinute,
		}, s.logger), nil

	case config.ProviderTypeWeb, config.ProviderTypeCustom:
		prof, err := resolveProfile(name, pc, userProfiles)
		if err != nil {
			return nil, err
		}
		return webchat.New(name, prof, s.newDriver(), s.logger), nil

	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

func (s *Server) newDriver() *browser.Browser {
	return browser.New(browser.Config{
		ControlURL: s.cfg.Browser.ControlURL,
		Headless:   s.cfg.Browser.Headless,
		UserAgent:  s.cfg.Browser.UserAgent,
		Timeout:    30 * time.Second,
	})
}

// resolveProfile turns a provider config entry into a selector profile.
// Web providers start from a named profile (built-in or from the profiles
// dir); custom providers are built entirely from the inline selectors.
// Inline fields override the base profile either way.
func resolveProfile(name string, pc config.ProviderConfig, userProfiles map[string]webchat.Profile) (webchat.Profile, error) {
	var prof webchat.Profile

	if pc.Type == config.ProviderTypeWeb {
		profileName := pc.Profile
		if profileName == "" {
			profileName = name
		}
		base, ok := userProfiles[profileName]
		if !ok {
			base, ok = webchat.BuiltinProfiles()[profileName]
		}
		if !ok {
			return prof, fmt.Errorf("unknown selector profile %q", profileName)
		}
		prof = base
	}

	prof.Name = name
	if pc.BaseURL != "" {
		prof.BaseURL = pc.BaseURL
	}
	if pc.Model != "" {
		prof.Model = pc.Model
	}
	if pc.UseXPath {
		prof.UseXPath = true
	}
	overrideSelectors(&prof.Selectors, pc.Selectors)
	overrideTiming(&prof.Timing, pc.Timing)
	prof.ApplyDefaults()

	if err := prof.Validate(); err != nil {
		return prof, err
	}
	return prof, nil
}

func overrideSelectors(dst *webchat.Selectors, src config.SelectorsConfig) {
	if src.Input != "" {
		dst.Input = src.Input
	}
	if src.SendButton != "" {
		dst.SendButton = src.SendButton
	}
	if src.Response != "" {
		dst.Response = src.Response
	}
	if src.NewChat != "" {
		dst.NewChat = src.NewChat
	}
	if src.Loading != "" {
		dst.Loading = src.Loading
	}
	if src.LoginGate != "" {
		dst.LoginGate = src.LoginGate
	}
	if src.RateLimit != "" {
		dst.RateLimit = src.RateLimit
	}
}

func overrideTiming(dst *webchat.Timing, src config.TimingConfig) {
	if src.NavSettleMs > 0 {
		dst.NavSettle = time.Duration(src.NavSettleMs) * time.Millisecond
	}
	if src.PollIntervalMs > 0 {
		dst.PollInterval = time.Duration(src.PollIntervalMs) * time.Millisecond
	}
	if src.StableAfterMs > 0 {
		dst.StableAfter = time.Duration(src.StableAfterMs) * time.Millisecond
	}
	if src.ResponseTimeoutMs > 0 {
		dst.ResponseTimeout = time.Duration(src.ResponseTimeoutMs) * time.Millisecond
	}
}

// Start starts the gateway server and blocks until shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("gateway already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	// Initialize providers in the background; web providers launch browsers
	// and should not delay the HTTP listener.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.registry.InitAll(ctx, s.logger); err != nil {
			s.logger.Warn().Err(err).Msg("Some providers failed to initialize")
		}
		s.refreshHealth()
	}()

	s.startMaintenance()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Bind, s.cfg.Gateway.Port)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Gateway server starting")
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("Gateway server failed")
		}
	}()

	s.printStartupBanner(addr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Fallback: if terminal is in raw/no-ISIG mode, Ctrl+C may appear as byte 0x03.
	// Capture it so users can still stop the gateway.
	manualQuit := make(chan struct{}, 1)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			reader := bufio.NewReader(os.Stdin)
			for {
				b, err := reader.ReadByte()
				if err != nil {
					return
				}
				if b == 3 {
					manualQuit <- struct{}{}
					return
				}
			}
		}()
	}

	select {
	case <-quit:
	case <-manualQuit:
	}

	return s.Shutdown()
}

// Shutdown stops the maintenance jobs, closes all providers and shuts the
// HTTP server down gracefully.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down gateway server...")

	s.stopMaintenance()
	s.registry.CloseAll(s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Server stopped")
	return nil
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))

	// Recover from panics
	s.echo.Use(middleware.Recover())

	// Rate Limiting (Global)
	s.echo.Use(s.RateLimitMiddleware())

	// CORS
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	}))
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	// Health check and service info are unauthenticated
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/", s.handleRoot)

	// Chat API
	v1 := s.echo.Group("/v1")
	v1.Use(s.AuthMiddleware)
	{
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.POST("/chat/stream", s.handleChatStream)
		v1.POST("/chat/new", s.handleNewChat)

		v1.GET("/models", s.handleModels)

		v1.GET("/providers", s.handleListProviders)
		v1.POST("/providers/custom", s.handleAddCustomProvider)
		v1.DELETE("/providers/:name", s.handleRemoveProvider)
	}

	// Operational API
	api := s.echo.Group("/api")
	api.Use(s.AuthMiddleware)
	{
		api.GET("/status", s.handleStatus)
		api.GET("/sessions", s.handleListSessions)
		api.DELETE("/sessions/:id", s.handleRemoveSession)
	}

	// WebSocket chat
	s.echo.GET("/ws/:client_id", s.AuthMiddleware(s.handleWebSocket))
}

func (s *Server) printStartupBanner(addr string) {
	fmt.Println()
	fmt.Println("  ChatHub Gateway")
	fmt.Println("  ===============")
	fmt.Printf("  HTTP API:  http://%s\n", addr)
	fmt.Printf("  WebSocket: ws://%s/ws/<client_id>\n", addr)
	fmt.Printf("  Providers: %d configured\n", s.registry.Count())
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()
}

// IsRunning returns whether the gateway is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the gateway has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}
