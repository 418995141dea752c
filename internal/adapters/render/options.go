package render

import "github.com/okian/pitchjudge/pkg/logger"

// Option applies a configuration option to the Pdftoppm renderer.
type Option func(*Pdftoppm)

// WithBinary sets the pdftoppm executable name or path.
func WithBinary(bin string) Option {
	return func(p *Pdftoppm) {
		if bin != "" {
			p.bin = bin
		}
	}
}

// WithDPI sets the rasterization resolution.
func WithDPI(dpi int) Option {
	return func(p *Pdftoppm) {
		if dpi > 0 {
			p.dpi = dpi
		}
	}
}

// WithMaxWidth sets the slide width in pixels; height follows the page ratio.
func WithMaxWidth(px int) Option {
	return func(p *Pdftoppm) {
		if px > 0 {
			p.maxWidth = px
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pdftoppm) {
		if log != nil {
			p.logger = log
		}
	}
}

func withExecutor(e executor) Option {
	return func(p *Pdftoppm) {
		p.exec = e
	}
}
