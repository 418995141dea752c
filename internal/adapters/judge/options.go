package judge

import (
	"net/http"

	"github.com/okian/pitchjudge/pkg/logger"
)

// Option applies a configuration option to the Gemini client.
type Option func(*Gemini)

// WithEndpoint sets the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(g *Gemini) {
		if endpoint != "" {
			g.endpoint = endpoint
		}
	}
}

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(g *Gemini) {
		if name != "" {
			g.model = name
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) {
		if c != nil {
			g.http = c
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Gemini) {
		if t >= 0 {
			g.temperature = t
		}
	}
}

// WithMaxOutputTokens bounds the answer length.
func WithMaxOutputTokens(n int) Option {
	return func(g *Gemini) {
		if n > 0 {
			g.maxOutputTokens = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(g *Gemini) {
		if log != nil {
			g.logger = log
		}
	}
}
