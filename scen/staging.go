package scen

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// copyFile duplicates a model file, preserving nothing but contents; the
// engine treats each copy as an independent model.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening model file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating model copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying model file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing model copy: %w", err)
	}
	return nil
}

// workerCopyPath names a worker's private model copy next to the source:
// model.yaml -> model_w3.yaml for worker 3.
func workerCopyPath(src string, worker int) string {
	ext := filepath.Ext(src)
	stem := strings.TrimSuffix(src, ext)
	return fmt.Sprintf("%s_w%d%s", stem, worker, ext)
}

// removeWithRetry deletes a staged file, retrying with backoff. The engine
// can hold its model file open briefly after a session closes.
func removeWithRetry(path string, retries int, backoff time.Duration) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		time.Sleep(backoff)
	}
	return fmt.Errorf("removing %s after %d attempts: %w", path, retries+1, err)
}

// sweepWorkerCopies removes leftover worker model copies for a source path.
// Run after a batch in case a worker died before its own cleanup.
func sweepWorkerCopies(src string) {
	ext := filepath.Ext(src)
	stem := strings.TrimSuffix(src, ext)
	matches, err := filepath.Glob(fmt.Sprintf("%s_w*%s", stem, ext))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("could not remove leftover worker copy %s: %v", m, err)
		}
	}
}
