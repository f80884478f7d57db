// internal/artifacts/sink.go

// Package artifacts persists debug imagery from resolution attempts:
// challenge captures and per-candidate verification crops. Writes are
// asynchronous so diagnostics never slow the attempt path, and the sink is
// nil-safe so callers need no enabled/disabled branching.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krylovex/gridpick-cli/internal/config"
)

// Bounded number of concurrent artifact writes in flight.
const writeConcurrency = 4

// Sink writes attempt artifacts under a single directory. Construct it with
// NewSink and drain it with Close before process exit.
type Sink struct {
	dir    string
	group  *errgroup.Group
	logger *zap.Logger
}

// NewSink resolves the artifact directory (homedir-expanded) and creates it.
// A disabled config yields a nil sink; every method on a nil *Sink is a safe
// no-op.
func NewSink(cfg config.ArtifactsConfig, logger *zap.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve artifact dir %q: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create artifact dir %q: %w", dir, err)
	}

	g := &errgroup.Group{}
	g.SetLimit(writeConcurrency)

	return &Sink{
		dir:    dir,
		group:  g,
		logger: logger.Named("artifacts"),
	}, nil
}

// SaveChallenge stores a captured challenge raster for the given attempt.
func (s *Sink) SaveChallenge(attempt int, png []byte) {
	if s == nil {
		return
	}
	s.save(fmt.Sprintf("challenge_%d_%d.png", attempt, time.Now().UnixMilli()), png)
}

// SaveCrop stores one preprocessed verification crop by candidate index.
func (s *Sink) SaveCrop(index int, png []byte) {
	if s == nil {
		return
	}
	s.save(fmt.Sprintf("crop_%d_%d.png", index, time.Now().UnixMilli()), png)
}

// save enqueues one write. The payload is copied because the caller may
// reuse its buffer before the write lands.
func (s *Sink) save(name string, data []byte) {
	if len(data) == 0 {
		return
	}
	owned := append([]byte(nil), data...)
	path := filepath.Join(s.dir, name)

	s.group.Go(func() error {
		if err := os.WriteFile(path, owned, 0o644); err != nil {
			s.logger.Warn("Artifact write failed",
				zap.String("path", path),
				zap.Error(err),
			)
			return err
		}
		s.logger.Debug("Artifact written", zap.String("path", path))
		return nil
	})
}

// Close drains pending writes and reports the first persistent failure.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.group.Wait()
}
