// Package cache maps prompts to generated scripts on disk. A script is
// generated once per prompt key and reused verbatim afterwards.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"scriptpipe/internal/logging"
	"scriptpipe/internal/telemetry"
)

// Generator is the code generation collaborator consulted on a miss.
type Generator interface {
	Generate(ctx context.Context, sample []string, prompt string) (string, error)
}

type Cache struct {
	dir   string
	gen   Generator
	permF os.FileMode
	permD os.FileMode
}

type Option func(*Cache)

// WithPerm overrides the file and directory modes (0644 / 0755).
func WithPerm(file, dir os.FileMode) Option {
	return func(c *Cache) {
		if file != 0 {
			c.permF = file
		}
		if dir != 0 {
			c.permD = dir
		}
	}
}

func New(dir string, gen Generator, opts ...Option) *Cache {
	c := &Cache{dir: dir, gen: gen, permF: 0o644, permD: 0o755}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sanitize maps a prompt to a file name stem. Distinct prompts may collide.
func Sanitize(prompt string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, prompt)
}

// Path is where the script for prompt lives, whether or not it exists yet.
func (c *Cache) Path(prompt string) string {
	return filepath.Join(c.dir, Sanitize(prompt)+".js")
}

// Resolve returns the path of the script for prompt, generating and
// persisting it first when it does not exist. An existing file is returned
// as is.
func (c *Cache) Resolve(ctx context.Context, prompt string, sample []string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("cache: empty prompt")
	}
	if err := os.MkdirAll(c.dir, c.permD); err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}

	path := c.Path(prompt)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		telemetry.CacheLookups.WithLabelValues("hit").Inc()
		logging.L().Debug("cache: hit", "path", path)
		return path, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("cache: %w", err)
	}
	telemetry.CacheLookups.WithLabelValues("miss").Inc()

	if c.gen == nil {
		return "", fmt.Errorf("cache: no script for %q and no generator configured", prompt)
	}
	logging.L().Info("cache: miss, generating script", "path", path, "sample", len(sample))
	text, err := c.gen.Generate(ctx, sample, prompt)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}

	if err := c.writeAtomic(path, []byte(StripFence(text)+"\n")); err != nil {
		return "", fmt.Errorf("cache: write %s: %w", path, err)
	}
	return path, nil
}

// StripFence removes surrounding whitespace and a markdown code fence. On the
// opening fence a JavaScript language tag (```js) is part of the marker.
func StripFence(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, "```")
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
		if tag, body, found := strings.Cut(s, "\n"); found && isLangTag(tag) {
			s = body
		}
	}
	return strings.TrimSpace(s)
}

// langTags are the fence tags a model puts on JavaScript. Anything else on
// the fence line is kept, since it may be the first line of code.
var langTags = map[string]bool{
	"js": true, "javascript": true, "mjs": true, "ecmascript": true,
	"jsx": true, "node": true, "nodejs": true,
}

func isLangTag(s string) bool {
	return langTags[strings.ToLower(strings.TrimSpace(s))]
}

// writeAtomic: temp file in the same directory, fsync, rename.
func (c *Cache) writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, c.permF)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// syncDir is best effort; some platforms cannot fsync a directory.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
