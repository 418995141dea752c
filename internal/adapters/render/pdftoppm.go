// Package render turns uploaded documents into ordered slide images using the
// poppler pdftoppm command.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/pitchjudge/pkg/logger"
)

const (
	defaultBinary   = "pdftoppm"
	defaultDPI      = 300
	defaultMaxWidth = 1920

	pagePrefix  = "page"
	slidePrefix = "slide_"
	slideExt    = ".png"
)

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Pdftoppm renders PDF documents to PNG slides.
type Pdftoppm struct {
	bin      string
	dpi      int
	maxWidth int
	exec     executor
	logger   logger.Logger
}

// New creates a Pdftoppm renderer.
func New(opts ...Option) *Pdftoppm {
	p := &Pdftoppm{
		bin:      defaultBinary,
		dpi:      defaultDPI,
		maxWidth: defaultMaxWidth,
		exec:     osExecutor{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("render")
	}
	return p
}

// Available reports whether the pdftoppm binary can be found.
func (p *Pdftoppm) Available() error {
	if _, err := p.exec.LookPath(p.bin); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, p.bin, err)
	}
	return nil
}

// Render writes one slide_NNN.png per page of documentPath into outputDir and
// returns their paths in page order. Slides left over from an earlier attempt
// are replaced.
func (p *Pdftoppm) Render(ctx context.Context, documentPath, outputDir string) ([]string, error) {
	if _, err := os.Stat(documentPath); err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := removeMatching(outputDir, slidePrefix); err != nil {
		return nil, err
	}
	if err := removeMatching(outputDir, pagePrefix+"-"); err != nil {
		return nil, err
	}

	args := []string{
		"-r", strconv.Itoa(p.dpi),
		"-png",
		"-scale-to-x", strconv.Itoa(p.maxWidth),
		"-scale-to-y", "-1",
		documentPath,
		filepath.Join(outputDir, pagePrefix),
	}
	if out, err := p.exec.Run(ctx, p.bin, args...); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", p.bin, filepath.Base(documentPath), err, strings.TrimSpace(string(out)))
	}

	pages, err := pageFiles(outputDir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(documentPath), ErrNoPages)
	}

	slides := make([]string, 0, len(pages))
	for i, page := range pages {
		slide := filepath.Join(outputDir, fmt.Sprintf("%s%03d%s", slidePrefix, i+1, slideExt))
		if err := os.Rename(page, slide); err != nil {
			return nil, fmt.Errorf("rename page %d: %w", i+1, err)
		}
		slides = append(slides, slide)
	}

	p.logger.Debug(ctx, "document rendered",
		logger.String("document", documentPath),
		logger.Int("slides", len(slides)),
	)
	return slides, nil
}

// Slides lists the slides previously rendered into outputDir in page order.
func (p *Pdftoppm) Slides(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read slide dir: %w", err)
	}
	var slides []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, slidePrefix) || !strings.HasSuffix(name, slideExt) {
			continue
		}
		slides = append(slides, filepath.Join(outputDir, name))
	}
	sort.Strings(slides)
	return slides, nil
}

// pageFiles returns pdftoppm's page-N.png outputs ordered by page number.
// pdftoppm pads N to the width of the page count, so names alone do not sort.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	type page struct {
		n    int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, pagePrefix+"-") || !strings.HasSuffix(name, slideExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, pagePrefix+"-"), slideExt))
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, pg := range pages {
		out[i] = pg.path
	}
	return out, nil
}

func removeMatching(dir, prefix string) error {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"+slideExt))
	if err != nil {
		return fmt.Errorf("glob %s: %w", prefix, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale slide: %w", err)
		}
	}
	return nil
}
