package webchat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chathub/chathub/internal/provider"
)

// Driver abstracts the browser session the chat runs against. It is
// implemented by the browser package and by test fakes.
type Driver interface {
	Start(ctx context.Context) error
	Close()
	IsConnected() bool
	Navigate(ctx context.Context, url string) error
	SendKeys(ctx context.Context, selector, text string, xpath bool) error
	Evaluate(ctx context.Context, js string, out interface{}) error
}

// Chat is a provider that drives a web chat interface through a browser.
// Operations are serialized; a page holds one conversation at a time.
type Chat struct {
	mu      sync.Mutex
	name    string
	kind    provider.Kind
	profile Profile
	driver  Driver
	logger  zerolog.Logger

	ready         bool
	loginRequired bool
}

var (
	_ provider.Provider       = (*Chat)(nil)
	_ provider.Conversational = (*Chat)(nil)
)

// New creates a web chat provider from a profile and a driver.
func New(name string, profile Profile, driver Driver, logger zerolog.Logger) *Chat {
	profile.ApplyDefaults()
	kind := provider.KindWeb
	if profile.Name != name {
		kind = provider.KindCustom
	}
	return &Chat{
		name:    name,
		kind:    kind,
		profile: profile,
		driver:  driver,
		logger:  logger.With().Str("provider", name).Logger(),
	}
}

// Profile returns the selector profile in use.
func (c *Chat) Profile() Profile { return c.profile }

func (c *Chat) Name() string        { return c.name }
func (c *Chat) Kind() provider.Kind { return c.kind }

// Init starts the browser and navigates to the chat page.
func (c *Chat) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.driver.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	if err := c.driver.Navigate(ctx, c.profile.BaseURL); err != nil {
		c.driver.Close()
		return fmt.Errorf("navigate %s: %w", c.profile.BaseURL, err)
	}
	if err := sleep(ctx, c.profile.Timing.NavSettle); err != nil {
		return err
	}

	if gated, _ := c.matches(ctx, c.profile.Selectors.LoginGate); gated {
		// Page loads but the chat is behind a login. Keep the session so the
		// user can authenticate through a headed browser or remote CDP.
		c.loginRequired = true
		c.logger.Warn().Str("url", c.profile.BaseURL).Msg("Login required, provider not ready")
	}

	c.ready = true
	c.logger.Info().Str("url", c.profile.BaseURL).Msg("Web chat ready")
	return nil
}

// Send submits a message and returns the complete response.
func (c *Chat) Send(ctx context.Context, message string, history []provider.Message) (*provider.Response, error) {
	var sb strings.Builder
	err := c.Stream(ctx, message, history, func(delta string) {
		sb.WriteString(delta)
	})
	if err != nil {
		return nil, err
	}
	return &provider.Response{
		Content:  sb.String(),
		Provider: c.name,
		Model:    c.model(),
	}, nil
}

// Stream submits a message and delivers the response incrementally. History
// is ignored; the page itself carries the conversation.
func (c *Chat) Stream(ctx context.Context, message string, history []provider.Message, onDelta provider.DeltaFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return provider.ErrNotInitialized
	}
	if c.loginRequired {
		if gated, _ := c.matches(ctx, c.profile.Selectors.LoginGate); gated {
			return provider.ErrLoginRequired
		}
		c.loginRequired = false
	}

	baseline, err := c.lastResponse(ctx)
	if err != nil {
		return err
	}

	if err := c.submit(ctx, message); err != nil {
		return err
	}
	return c.collect(ctx, baseline, onDelta)
}

// submit clears the input, types the message and triggers sending.
func (c *Chat) submit(ctx context.Context, message string) error {
	xp := c.profile.UseXPath

	var ok bool
	if err := c.driver.Evaluate(ctx, jsClearInput(c.profile.Selectors.Input, xp), &ok); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := c.driver.Evaluate(ctx, jsSetInput(c.profile.Selectors.Input, message, xp), &ok); err != nil {
		return fmt.Errorf("fill input: %w", err)
	}
	if !ok {
		return fmt.Errorf("input element not found: %s", c.profile.Selectors.Input)
	}

	if c.profile.Selectors.SendButton == "" {
		// No send button, submit with Enter.
		return c.driver.SendKeys(ctx, c.profile.Selectors.Input, "\n", xp)
	}

	// Give the page a tick to enable the button after input.
	deadline := time.Now().Add(3 * time.Second)
	for {
		var disabled bool
		if err := c.driver.Evaluate(ctx, jsSendDisabled(c.profile.Selectors.SendButton, xp), &disabled); err != nil {
			return fmt.Errorf("check send button: %w", err)
		}
		if !disabled || time.Now().After(deadline) {
			break
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}

	var clicked bool
	if err := c.driver.Evaluate(ctx, jsClickFirst(c.profile.Selectors.SendButton, xp), &clicked); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	if !clicked {
		// Button selectors drift; Enter is the common fallback.
		return c.driver.SendKeys(ctx, c.profile.Selectors.Input, "\n", xp)
	}
	return nil
}

// collect polls the page until the response stops changing, emitting suffix
// deltas as the text grows. baseline is the last response text before the
// message was sent, so a stale previous answer is never replayed.
func (c *Chat) collect(ctx context.Context, baseline string, onDelta provider.DeltaFunc) error {
	t := c.profile.Timing
	deadline := time.Now().Add(t.ResponseTimeout)

	var (
		prev        string
		seenNew     bool
		seenLoading bool
		stableSince time.Time
	)

	for {
		if time.Now().After(deadline) {
			if seenNew {
				return nil
			}
			return fmt.Errorf("response timeout after %s", t.ResponseTimeout)
		}
		if err := sleep(ctx, t.PollInterval); err != nil {
			return err
		}

		if limited, _ := c.matches(ctx, c.profile.Selectors.RateLimit); limited {
			return provider.ErrRateLimited
		}

		loading, err := c.matches(ctx, c.profile.Selectors.Loading)
		if err != nil {
			return err
		}
		if loading {
			seenLoading = true
		}

		cur, err := c.lastResponse(ctx)
		if err != nil {
			return err
		}
		if cur == baseline || cur == "" {
			continue
		}

		if !seenNew {
			seenNew = true
			prev = ""
		}
		if cur != prev {
			onDelta(diffSuffix(prev, cur))
			prev = cur
			stableSince = time.Now()
			continue
		}

		// Unchanged. Done once the loading indicator is gone (if the site
		// ever showed one) and the text has been stable long enough.
		if seenLoading && loading {
			continue
		}
		if time.Since(stableSince) >= t.StableAfter {
			return nil
		}
	}
}

// NewChat resets the page-side conversation, clicking the new chat control
// when the profile has one and navigating back to the base URL otherwise.
// Re-navigating rather than reloading matters: chat sites move off the base
// URL into per-conversation URLs once a chat starts.
func (c *Chat) NewChat(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return provider.ErrNotInitialized
	}

	if c.profile.Selectors.NewChat != "" {
		var clicked bool
		err := c.driver.Evaluate(ctx, jsClickFirst(c.profile.Selectors.NewChat, c.profile.UseXPath), &clicked)
		if err == nil && clicked {
			return sleep(ctx, c.profile.Timing.NavSettle)
		}
	}

	if err := c.driver.Navigate(ctx, c.profile.BaseURL); err != nil {
		return fmt.Errorf("reload chat: %w", err)
	}
	return sleep(ctx, c.profile.Timing.NavSettle)
}

// Models returns the single page-backed model identity.
func (c *Chat) Models(ctx context.Context) ([]string, error) {
	return []string{c.model()}, nil
}

// Healthy reports whether the browser is up, the chat input is present, and
// no login or rate-limit gate is showing.
func (c *Chat) Healthy(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready || !c.driver.IsConnected() {
		return false
	}

	gated, err := c.matches(ctx, c.profile.Selectors.LoginGate)
	if err != nil {
		return false
	}
	c.loginRequired = gated
	if gated {
		return false
	}

	if limited, _ := c.matches(ctx, c.profile.Selectors.RateLimit); limited {
		return false
	}

	var exists bool
	if err := c.driver.Evaluate(ctx, jsExists(c.profile.Selectors.Input, c.profile.UseXPath), &exists); err != nil {
		return false
	}
	return exists
}

// Close shuts the browser session down.
func (c *Chat) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver.Close()
	c.ready = false
	return nil
}

func (c *Chat) model() string {
	if c.profile.Model != "" {
		return c.profile.Model
	}
	return c.name + "-web"
}

// lastResponse reads the text of the newest response element.
func (c *Chat) lastResponse(ctx context.Context) (string, error) {
	var text string
	if err := c.driver.Evaluate(ctx, jsLastText(c.profile.Selectors.Response, c.profile.UseXPath), &text); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return text, nil
}

// matches reports whether selector matches anything. An empty selector never
// matches.
func (c *Chat) matches(ctx context.Context, selector string) (bool, error) {
	if selector == "" {
		return false, nil
	}
	var exists bool
	if err := c.driver.Evaluate(ctx, jsExists(selector, c.profile.UseXPath), &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// diffSuffix returns the portion of cur not yet emitted. When cur no longer
// extends prev (the site re-rendered the message), the full text is returned.
func diffSuffix(prev, cur string) string {
	if strings.HasPrefix(cur, prev) {
		return cur[len(prev):]
	}
	return cur
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
