package gemini

import "time"

// Config holds Gemini client configuration.
type Config struct {
	APIKey  string
	Model   string        // default "gemini-1.5-flash-latest"
	BaseURL string        // default public endpoint
	Timeout time.Duration // HTTP client timeout; 0 = none
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gemini-1.5-flash-latest"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
}
