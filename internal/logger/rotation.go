package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RotatingWriter appends to a log file and rotates it aside once a write
// would grow it past the size limit. Rotated files carry a timestamp suffix,
// are optionally gzipped, and are removed once older than maxAge days.
type RotatingWriter struct {
	filename string
	maxSize  int64 // bytes
	maxAge   int   // days
	compress bool

	file *os.File
	size int64
}

// NewRotatingWriter opens the log file for appending, creating its directory
// if needed, and sweeps expired rotations in the background.
func NewRotatingWriter(filename string, maxSizeMB, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	w := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAge,
		compress: compress,
		file:     file,
		size:     info.Size(),
	}
	go w.cleanup()

	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active log file.
func (w *RotatingWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// rotate renames the active file with a timestamp suffix and reopens a fresh
// one in its place.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.filename, time.Now().Format("20060102-150405"))
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}
	if w.compress {
		go w.compressFile(rotated)
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0
	return nil
}

// compressFile gzips a rotated file and removes the original.
func (w *RotatingWriter) compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	defer gzw.Close()
	if _, err := io.Copy(gzw, src); err != nil {
		return err
	}

	return os.Remove(path)
}

// cleanup removes rotated files older than maxAge days.
func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
		if !strings.HasSuffix(path, ".gz") {
			os.Remove(path + ".gz")
		}
	}
}
