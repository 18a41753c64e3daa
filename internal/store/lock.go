package store

import (
	"fmt"
	"os"
	"time"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// lockConfig controls lock acquisition timing. Defaults mirror spec.md §5:
// timeoutMs ~600ms, staleMs 30s.
type lockConfig struct {
	timeout time.Duration
	stale   time.Duration
	poll    time.Duration
}

func defaultLockConfig() lockConfig {
	return lockConfig{
		timeout: 600 * time.Millisecond,
		stale:   30 * time.Second,
		poll:    10 * time.Millisecond,
	}
}

// fileLock represents a held sidecar lock file that must be released via
// unlock().
type fileLock struct {
	path string
}

// acquireLock creates path exclusively (O_CREATE|O_EXCL), retrying past a
// stale lock (mtime older than cfg.stale) and waiting up to cfg.timeout
// otherwise.
func acquireLock(path string, cfg lockConfig) (*fileLock, error) {
	deadline := time.Now().Add(cfg.timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return &fileLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, gwerr.Wrap(gwerr.KindLockConflict, "create lock file", err)
		}

		if info, statErr := os.Stat(path); statErr == nil {
			if time.Since(info.ModTime()) > cfg.stale {
				_ = os.Remove(path)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, gwerr.New(gwerr.KindLockConflict, fmt.Sprintf("timed out acquiring lock %s", path))
		}
		time.Sleep(cfg.poll)
	}
}

func (l *fileLock) unlock() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// acquireSorted acquires locks for multiple paths in lexical path order to
// avoid deadlock between concurrent multi-path operations (e.g. Rename).
func acquireSorted(paths []string, cfg lockConfig) ([]*fileLock, error) {
	sorted := append([]string(nil), paths...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	held := make([]*fileLock, 0, len(sorted))
	for _, p := range sorted {
		l, err := acquireLock(p, cfg)
		if err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				_ = held[i].unlock()
			}
			return nil, err
		}
		held = append(held, l)
	}
	return held, nil
}

func unlockAll(locks []*fileLock) {
	for _, l := range locks {
		_ = l.unlock()
	}
}
