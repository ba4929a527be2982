package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chathub/chathub/internal/config"
	"github.com/chathub/chathub/internal/provider"
	"github.com/chathub/chathub/internal/provider/webchat"
	"github.com/chathub/chathub/internal/session"
	"github.com/chathub/chathub/internal/version"
)

// ChatRequest is the body of the completion and stream endpoints.
type ChatRequest struct {
	Message   string             `json:"message" validate:"required"`
	Provider  string             `json:"provider"`
	SessionID string             `json:"sessionId"`
	History   []provider.Message `json:"history"`
}

// ChatResponse is the non-streaming completion result.
type ChatResponse struct {
	Response  string          `json:"response"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model,omitempty"`
	SessionID string          `json:"sessionId"`
	Usage     *provider.Usage `json:"usage,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewChatRequest resets a provider conversation.
type NewChatRequest struct {
	Provider  string `json:"provider"`
	SessionID string `json:"sessionId"`
}

// CustomProviderRequest registers a user-defined web chat provider at runtime.
type CustomProviderRequest struct {
	Name     string `json:"name" validate:"required"`
	BaseURL  string `json:"baseUrl" validate:"required,url"`
	Model    string `json:"model"`
	UseXPath bool   `json:"useXpath"`

	Selectors struct {
		Input      string `json:"input" validate:"required"`
		SendButton string `json:"sendButton" validate:"required"`
		Response   string `json:"response" validate:"required"`
		NewChat    string `json:"newChat"`
		Loading    string `json:"loading"`
		LoginGate  string `json:"loginGate"`
		RateLimit  string `json:"rateLimit"`
	} `json:"selectors"`

	Timing struct {
		NavSettleMs       int `json:"navSettleMs"`
		PollIntervalMs    int `json:"pollIntervalMs"`
		StableAfterMs     int `json:"stableAfterMs"`
		ResponseTimeoutMs int `json:"responseTimeoutMs"`
	} `json:"timing"`

	SetDefault bool `json:"setDefault"`
	Persist    bool `json:"persist"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service": "ChatHub Gateway",
		"version": version.Version,
		"endpoints": map[string]string{
			"chat":      "POST /v1/chat/completions",
			"stream":    "POST /v1/chat/stream",
			"newChat":   "POST /v1/chat/new",
			"models":    "GET /v1/models",
			"providers": "GET /v1/providers",
			"websocket": "GET /ws/:client_id",
			"status":    "GET /api/status",
		},
	})
}

// handleChatCompletions dispatches a message to a provider and returns the
// full response.
func (s *Server) handleChatCompletions(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	p, err := s.registry.Get(req.Provider)
	if err != nil {
		return providerError(err)
	}

	sess := s.resolveSession(req.SessionID, p.Name())

	resp, err := p.Send(c.Request().Context(), req.Message, req.History)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", p.Name()).Msg("Chat request failed")
		return providerError(err)
	}
	s.sessions.Touch(sess.ID)

	return c.JSON(http.StatusOK, ChatResponse{
		Response:  resp.Content,
		Provider:  resp.Provider,
		Model:     resp.Model,
		SessionID: sess.ID,
		Usage:     resp.Usage,
		Timestamp: time.Now().UTC(),
	})
}

// handleChatStream dispatches a message and streams the response as
// server-sent events. Each delta arrives as a data: JSON line; the stream
// ends with data: [DONE].
func (s *Server) handleChatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	p, err := s.registry.Get(req.Provider)
	if err != nil {
		return providerError(err)
	}

	sess := s.resolveSession(req.SessionID, p.Name())

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Session-Id", sess.ID)
	res.WriteHeader(http.StatusOK)

	writeEvent := func(v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(res, "data: %s\n\n", data)
		res.Flush()
	}

	err = p.Stream(c.Request().Context(), req.Message, req.History, func(delta string) {
		writeEvent(map[string]string{"delta": delta, "provider": p.Name()})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("provider", p.Name()).Msg("Stream failed")
		writeEvent(map[string]string{"error": err.Error()})
	} else {
		s.sessions.Touch(sess.ID)
	}

	fmt.Fprint(res, "data: [DONE]\n\n")
	res.Flush()
	return nil
}

// handleNewChat resets the provider-side conversation and rotates the session.
func (s *Server) handleNewChat(c echo.Context) error {
	var req NewChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	p, err := s.registry.Get(req.Provider)
	if err != nil {
		return providerError(err)
	}

	if conv, ok := p.(provider.Conversational); ok {
		if err := conv.NewChat(c.Request().Context()); err != nil {
			s.logger.Error().Err(err).Str("provider", p.Name()).Msg("New chat failed")
			return providerError(err)
		}
	}

	if req.SessionID != "" {
		s.sessions.Remove(req.SessionID)
	}
	sess := s.sessions.Create(p.Name())

	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider":  p.Name(),
		"sessionId": sess.ID,
	})
}

// handleModels lists the models of every provider.
func (s *Server) handleModels(c echo.Context) error {
	ctx := c.Request().Context()
	models := make(map[string][]string)
	for _, p := range s.registry.List() {
		list, err := p.Models(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Str("provider", p.Name()).Msg("Model listing failed")
			continue
		}
		models[p.Name()] = list
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"models": models})
}

// handleListProviders lists providers with cached health state.
func (s *Server) handleListProviders(c echo.Context) error {
	health := s.healthSnapshot()
	defaultName := s.registry.Default()

	type providerInfo struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Default bool   `json:"default"`
		Healthy bool   `json:"healthy"`
	}

	providers := make([]providerInfo, 0, s.registry.Count())
	for _, p := range s.registry.List() {
		providers = append(providers, providerInfo{
			Name:    p.Name(),
			Kind:    string(p.Kind()),
			Default: p.Name() == defaultName,
			Healthy: health[p.Name()],
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleAddCustomProvider registers a user-defined web chat provider and
// optionally persists it to the config file.
func (s *Server) handleAddCustomProvider(c echo.Context) error {
	var req CustomProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	prof := webchat.Profile{
		Name:     req.Name,
		BaseURL:  req.BaseURL,
		Model:    req.Model,
		UseXPath: req.UseXPath,
		Selectors: webchat.Selectors{
			Input:      req.Selectors.Input,
			SendButton: req.Selectors.SendButton,
			Response:   req.Selectors.Response,
			NewChat:    req.Selectors.NewChat,
			Loading:    req.Selectors.Loading,
			LoginGate:  req.Selectors.LoginGate,
			RateLimit:  req.Selectors.RateLimit,
		},
	}
	overrideTiming(&prof.Timing, config.TimingConfig{
		NavSettleMs:       req.Timing.NavSettleMs,
		PollIntervalMs:    req.Timing.PollIntervalMs,
		StableAfterMs:     req.Timing.StableAfterMs,
		ResponseTimeoutMs: req.Timing.ResponseTimeoutMs,
	})
	prof.ApplyDefaults()

	chat := webchat.New(req.Name, prof, s.newDriver(), s.logger)
	if err := s.registry.Register(chat, req.SetDefault); err != nil {
		if errors.Is(err, provider.ErrAlreadyExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := chat.Init(c.Request().Context()); err != nil {
		s.registry.Remove(req.Name)
		chat.Close()
		s.logger.Error().Err(err).Str("provider", req.Name).Msg("Custom provider init failed")
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("provider init failed: %v", err))
	}

	if req.Persist {
		if err := s.persistCustomProvider(req); err != nil {
			s.logger.Warn().Err(err).Str("provider", req.Name).Msg("Failed to persist custom provider")
		}
	}

	s.logger.Info().Str("provider", req.Name).Str("url", req.BaseURL).Msg("Custom provider registered")
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"name":    req.Name,
		"kind":    string(chat.Kind()),
		"default": req.SetDefault,
	})
}

func (s *Server) persistCustomProvider(req CustomProviderRequest) error {
	if s.cfg.Providers == nil {
		s.cfg.Providers = make(map[string]config.ProviderConfig)
	}
	s.cfg.Providers[req.Name] = config.ProviderConfig{
		Type:     config.ProviderTypeCustom,
		Default:  req.SetDefault,
		BaseURL:  req.BaseURL,
		Model:    req.Model,
		UseXPath: req.UseXPath,
		Selectors: config.SelectorsConfig{
			Input:      req.Selectors.Input,
			SendButton: req.Selectors.SendButton,
			Response:   req.Selectors.Response,
			NewChat:    req.Selectors.NewChat,
			Loading:    req.Selectors.Loading,
			LoginGate:  req.Selectors.LoginGate,
			RateLimit:  req.Selectors.RateLimit,
		},
		Timing: config.TimingConfig{
			NavSettleMs:       req.Timing.NavSettleMs,
			PollIntervalMs:    req.Timing.PollIntervalMs,
			StableAfterMs:     req.Timing.StableAfterMs,
			ResponseTimeoutMs: req.Timing.ResponseTimeoutMs,
		},
	}
	return config.Save(s.cfg)
}

// handleRemoveProvider unregisters and closes a provider.
func (s *Server) handleRemoveProvider(c echo.Context) error {
	name := c.Param("name")

	p, err := s.registry.Remove(name)
	if err != nil {
		return providerError(err)
	}
	if err := p.Close(); err != nil {
		s.logger.Warn().Err(err).Str("provider", name).Msg("Provider close failed")
	}

	if _, ok := s.cfg.Providers[name]; ok {
		delete(s.cfg.Providers, name)
		if err := config.Save(s.cfg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update config after provider removal")
		}
	}

	s.logger.Info().Str("provider", name).Msg("Provider removed")
	return c.JSON(http.StatusOK, map[string]interface{}{"removed": name})
}

// handleStatus reports gateway runtime state.
func (s *Server) handleStatus(c echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"running":       s.IsRunning(),
		"version":       version.Version,
		"uptimeSeconds": int64(s.Uptime().Seconds()),
		"providers":     s.healthSnapshot(),
		"sessions":      s.sessions.GetStats(),
		"goroutines":    runtime.NumGoroutine(),
		"memoryMB":      mem.Alloc / 1024 / 1024,
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions := s.sessions.List()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleRemoveSession(c echo.Context) error {
	id := c.Param("id")
	if !s.sessions.Remove(id) {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"removed": id})
}

// resolveSession returns the session for the given id, creating a fresh one
// when the id is empty or expired.
func (s *Server) resolveSession(id, providerName string) *session.Session {
	if id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			return sess
		}
	}
	return s.sessions.Create(providerName)
}

// providerError maps provider sentinel errors onto HTTP status codes.
func providerError(err error) error {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, provider.ErrNotInitialized):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, provider.ErrLoginRequired):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, provider.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
