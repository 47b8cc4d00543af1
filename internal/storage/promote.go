package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// DefaultRetryDelay is the pause between attempts when a destination is unreachable.
const DefaultRetryDelay = time.Second

// ErrDestinationExists indicates a move target occupied by something other
// than a directory.
var ErrDestinationExists = errors.New("destination already exists")

// Promoter moves finished outputs into their destination trees. Moves and
// copies that fail because a path is missing are retried until they succeed
// or the context is cancelled.
type Promoter struct {
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewPromoter creates a Promoter. A non-positive delay uses DefaultRetryDelay.
func NewPromoter(retryDelay time.Duration) *Promoter {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Promoter{
		retryDelay: retryDelay,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger for the promoter.
func (p *Promoter) WithLogger(logger *slog.Logger) *Promoter {
	p.logger = logger
	return p
}

// RemoveStale deletes dir recursively if it is a directory left by an earlier run.
func (p *Promoter) RemoveStale(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", dir, err)
	}
	if !info.IsDir() {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("removing stale output %s: %w", dir, err)
	}
	p.logger.Info("removed stale output", slog.String("path", dir))
	return true, nil
}

// MoveDir moves the directory src into destParent and returns the new path.
func (p *Promoter) MoveDir(ctx context.Context, src, destParent string) (string, error) {
	var dest string
	err := RetryNotFound(ctx, p.retryDelay, p.logger, "move "+src, func() error {
		var err error
		dest, err = moveDir(src, destParent)
		return err
	})
	return dest, err
}

// CopyFile copies the file src into destDir, keeping its name, and returns
// the new path.
func (p *Promoter) CopyFile(ctx context.Context, src, destDir string) (string, error) {
	var dest string
	err := RetryNotFound(ctx, p.retryDelay, p.logger, "copy "+src, func() error {
		var err error
		dest, err = copyFile(src, destDir)
		return err
	})
	return dest, err
}

// RetryNotFound calls fn until it succeeds, fails with an error other than
// fs.ErrNotExist, or ctx is done. Attempts are spaced by delay.
func RetryNotFound(ctx context.Context, delay time.Duration, logger *slog.Logger, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					slog.String("operation", op),
					slog.Int("attempt", attempt),
				)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		logger.Warn("destination unreachable, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: giving up after %d attempts: %w (last error: %v)", op, attempt, ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func moveDir(src, destParent string) (string, error) {
	info, err := os.Stat(destParent)
	if err != nil {
		return "", fmt.Errorf("move destination: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("move destination %s is not a directory", destParent)
	}

	// The slot belongs to this move: a directory there is a partial copy
	// from an earlier attempt whose cleanup could not reach the share.
	dest := filepath.Join(destParent, filepath.Base(src))
	if err := clearSlot(dest); err != nil {
		return "", err
	}

	err = os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("moving %s to %s: %w", src, dest, err)
	}

	// Different filesystem: copy the tree, then drop the source.
	if err := copyTree(src, dest); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("copying %s to %s: %w", src, dest, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return "", fmt.Errorf("removing moved source %s: %w", src, err)
	}
	return dest, nil
}

func clearSlot(dest string) error {
	info, err := os.Lstat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", dest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clearing partial output %s: %w", dest, err)
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyContents(path, target)
	})
}

func copyFile(src, destDir string) (string, error) {
	info, err := os.Stat(destDir)
	if err != nil {
		return "", fmt.Errorf("copy destination: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("copy destination %s is not a directory", destDir)
	}
	dest := filepath.Join(destDir, filepath.Base(src))
	if err := copyContents(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func copyContents(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	return nil
}
