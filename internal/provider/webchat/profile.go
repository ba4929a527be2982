// Package webchat implements chat providers driven by browser automation
// against web chat interfaces. A single driver handles every site; the
// per-site differences live in a selector Profile.
package webchat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Selectors locates the interactive elements of a chat page. Each field is a
// CSS selector (or an XPath expression when the profile sets UseXPath);
// comma-separated CSS alternatives are tried in order.
type Selectors struct {
	Input      string `json:"input" yaml:"input"`
	SendButton string `json:"sendButton" yaml:"send_button"`
	Response   string `json:"response" yaml:"response"`
	NewChat    string `json:"newChat,omitempty" yaml:"new_chat,omitempty"`
	Loading    string `json:"loading,omitempty" yaml:"loading,omitempty"`
	LoginGate  string `json:"loginGate,omitempty" yaml:"login_gate,omitempty"`
	RateLimit  string `json:"rateLimit,omitempty" yaml:"rate_limit,omitempty"`
}

// Timing controls the pacing of the automation loop.
type Timing struct {
	NavSettle       time.Duration `json:"navSettle" yaml:"nav_settle"`
	PollInterval    time.Duration `json:"pollInterval" yaml:"poll_interval"`
	StableAfter     time.Duration `json:"stableAfter" yaml:"stable_after"`
	ResponseTimeout time.Duration `json:"responseTimeout" yaml:"response_timeout"`
}

// Profile describes how to drive one chat site.
type Profile struct {
	Name      string    `json:"name" yaml:"name"`
	BaseURL   string    `json:"baseUrl" yaml:"base_url"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	UseXPath  bool      `json:"useXpath,omitempty" yaml:"use_xpath,omitempty"`
	Selectors Selectors `json:"selectors" yaml:"selectors"`
	Timing    Timing    `json:"timing" yaml:"timing"`
}

// ApplyDefaults fills in zero timing values.
func (p *Profile) ApplyDefaults() {
	if p.Timing.NavSettle <= 0 {
		p.Timing.NavSettle = 3 * time.Second
	}
	if p.Timing.PollInterval <= 0 {
		p.Timing.PollInterval = 500 * time.Millisecond
	}
	if p.Timing.StableAfter <= 0 {
		p.Timing.StableAfter = 2 * time.Second
	}
	if p.Timing.ResponseTimeout <= 0 {
		p.Timing.ResponseTimeout = 120 * time.Second
	}
}

// Validate checks the profile has the minimum required fields.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("profile %s: base URL is required", p.Name)
	}
	if p.Selectors.Input == "" {
		return fmt.Errorf("profile %s: input selector is required", p.Name)
	}
	if p.Selectors.Response == "" {
		return fmt.Errorf("profile %s: response selector is required", p.Name)
	}
	return nil
}

// BuiltinProfiles returns the selector profiles for the known chat sites,
// keyed by name. Callers may mutate the returned values.
func BuiltinProfiles() map[string]Profile {
	profiles := map[string]Profile{
		"claude": {
			Name:    "claude",
			BaseURL: "https://claude.ai",
			Selectors: Selectors{
				Input:      "div[contenteditable='true'], textarea[placeholder*='Send a message'], .ProseMirror, div[data-testid='chat-input']",
				SendButton: "button[aria-label='Send Message'], button[type='submit']",
				Response:   ".font-claude-message, .prose, [data-testid='message'], .message-content, .markdown",
				NewChat:    "a[href='/new'], button[aria-label='New chat']",
				Loading:    ".loading, .thinking, .generating, [data-testid='loading'], .animate-pulse",
				LoginGate:  "input[type='email'], button[data-testid='login-button']",
			},
		},
		"gemini": {
			Name:    "gemini",
			BaseURL: "https://gemini.google.com",
			Selectors: Selectors{
				Input:      "div[contenteditable='true'], textarea[placeholder*='Enter a prompt'], .ql-editor, rich-textarea",
				SendButton: "button[aria-label='Send message'], button.send-button",
				Response:   ".model-response-text, .response-container, [data-testid='response'], .markdown-content",
				NewChat:    "button[aria-label='New chat'], .new-chat-button",
				Loading:    ".loading-indicator, .generating, .typing-indicator",
				LoginGate:  "a[href*='accounts.google.com']",
			},
		},
		"zai": {
			Name:    "zai",
			BaseURL: "https://chat.z.ai",
			Selectors: Selectors{
				Input:      "textarea[placeholder*='输入消息'], textarea[placeholder*='Type a message'], #chat-input",
				SendButton: "button[type='submit'], .send-button, button[aria-label='Send']",
				Response:   ".message-content, .chat-message, .response-text, [data-testid='message-content']",
				NewChat:    ".new-chat, button[aria-label='New chat']",
				Loading:    ".loading, .typing-indicator, .generating",
			},
		},
		"copilot": {
			Name:    "copilot",
			BaseURL: "https://github.com/copilot",
			Selectors: Selectors{
				Input:      "textarea[placeholder*='Ask Copilot'], #copilot-chat-textarea",
				SendButton: "button[aria-label='Send'], button[aria-label='Send now']",
				Response:   ".copilot-chat-message, [data-testid='chat-message'], .markdown-body",
				NewChat:    "button[aria-label='New conversation']",
				Loading:    ".copilot-loading, [data-testid='streaming-indicator']",
				LoginGate:  "a[href*='/login'], input[name='login']",
			},
		},
		"deepseek": {
			Name:    "deepseek",
			BaseURL: "https://chat.deepseek.com",
			Selectors: Selectors{
				Input:      "textarea#chat-input, textarea[placeholder*='Message']",
				SendButton: "div[role='button'][aria-disabled], button[type='submit']",
				Response:   ".ds-markdown, .message-content, [data-testid='message']",
				NewChat:    "div[role='button'].new-chat, button[aria-label='New chat']",
				Loading:    ".loading, .generating",
			},
		},
		"mistral": {
			Name:    "mistral",
			BaseURL: "https://chat.mistral.ai",
			Selectors: Selectors{
				Input:      "textarea[placeholder*='Ask'], div[contenteditable='true']",
				SendButton: "button[type='submit'], button[aria-label='Send question']",
				Response:   ".prose, [data-message-author-role='assistant'], .message-content",
				NewChat:    "a[href='/chat'], button[aria-label='New chat']",
				Loading:    ".animate-pulse, .loading",
			},
		},
		"perplexity": {
			Name:    "perplexity",
			BaseURL: "https://www.perplexity.ai",
			Selectors: Selectors{
				Input:      "textarea[placeholder*='Ask anything'], div[contenteditable='true']",
				SendButton: "button[aria-label='Submit'], button[type='submit']",
				Response:   ".prose, [data-testid='answer'], .markdown-content",
				NewChat:    "button[aria-label='New Thread'], a[href='/']",
				Loading:    ".animate-pulse, .loading-dots",
			},
		},
	}
	for name, p := range profiles {
		p.ApplyDefaults()
		profiles[name] = p
	}
	return profiles
}

// LoadProfileFile reads a single YAML profile definition.
func LoadProfileFile(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// LoadProfileDir loads every .yaml/.yml profile in dir. A missing directory
// is not an error.
func LoadProfileDir(dir string) (map[string]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Profile{}, nil
		}
		return nil, err
	}

	profiles := make(map[string]Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := LoadProfileFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
