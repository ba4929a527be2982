// Package provider defines the common interface for AI chat providers and a
// registry to manage them. Providers are either API-based (OpenAI-compatible
// endpoints) or web-automation based (a browser session against a chat UI).
package provider

import (
	"context"
	"errors"
	"time"
)

// Kind classifies how a provider reaches its backend.
type Kind string

const (
	KindAPI    Kind = "api"
	KindWeb    Kind = "web"
	KindCustom Kind = "custom"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn passed as history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is the result of a completed chat exchange.
type Response struct {
	Content  string                 `json:"content"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model,omitempty"`
	Usage    *Usage                 `json:"usage,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// DeltaFunc receives incremental response text during streaming.
type DeltaFunc func(delta string)

// Provider is the unified interface all chat backends implement.
type Provider interface {
	// Name returns the registered provider name.
	Name() string

	// Kind returns the provider kind (api, web, custom).
	Kind() Kind

	// Init prepares the provider (HTTP client setup, browser launch and
	// navigation). It must be called before Send or Stream.
	Init(ctx context.Context) error

	// Send submits a message and blocks until the full response is available.
	Send(ctx context.Context, message string, history []Message) (*Response, error)

	// Stream submits a message and delivers response text incrementally
	// through onDelta. It returns after the response is complete.
	Stream(ctx context.Context, message string, history []Message, onDelta DeltaFunc) error

	// Models lists the models this provider can serve.
	Models(ctx context.Context) ([]string, error)

	// Healthy reports whether the provider is currently usable.
	Healthy(ctx context.Context) bool

	// Close releases provider resources (HTTP sessions, browser).
	Close() error
}

// Conversational is implemented by providers that hold page-side conversation
// state and can reset it.
type Conversational interface {
	NewChat(ctx context.Context) error
}

// Sentinel errors shared across provider implementations.
var (
	ErrNotFound       = errors.New("provider not found")
	ErrAlreadyExists  = errors.New("provider already registered")
	ErrNotInitialized = errors.New("provider not initialized")
	ErrLoginRequired  = errors.New("login required")
	ErrRateLimited    = errors.New("rate limited")
)
