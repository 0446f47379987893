package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rotates by size and by
// calendar day. Rotated files are named <name>-<timestamp><ext>, optionally
// gzipped, and pruned by count and age.
type FileRotator struct {
	config   *Config
	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	now      func() time.Time
	bg       sync.WaitGroup
	bgMu     sync.Mutex
}

// NewFileRotator creates a new FileRotator.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{config: cfg, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.openedAt = r.now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p))) {
		if err := r.rotateLocked(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64) bool {
	if r.size == 0 {
		return false
	}
	if maxBytes := r.config.MaxSize * 1024 * 1024; maxBytes > 0 && r.size+writeSize > maxBytes {
		return true
	}
	y1, m1, d1 := r.openedAt.Date()
	y2, m2, d2 := r.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Rotate forces a rotation of the current file.
func (r *FileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotateLocked()
}

func (r *FileRotator) rotateLocked() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	name, ext := r.nameParts()
	rotated := filepath.Join(filepath.Dir(r.config.FilePath),
		fmt.Sprintf("%s-%s%s", name, r.now().Format("20060102-150405.000"), ext))

	if err := os.Rename(r.config.FilePath, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		r.bgMu.Lock()
		defer r.bgMu.Unlock()
		if r.config.Compress {
			compressFile(rotated)
		}
		r.cleanup()
	}()
	return nil
}

func (r *FileRotator) nameParts() (name, ext string) {
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func (r *FileRotator) rotatedFiles() ([]string, error) {
	name, ext := r.nameParts()
	pattern := filepath.Join(filepath.Dir(r.config.FilePath), name+"-*"+ext+"*")
	return filepath.Glob(pattern)
}

// compressFile gzips path and removes the original on success.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// cleanup removes rotated files beyond MaxBackups or older than MaxAge.
func (r *FileRotator) cleanup() {
	matches, err := r.rotatedFiles()
	if err != nil {
		return
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	files := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		files = append(files, entry{path: m, modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	cutoff := time.Now().AddDate(0, 0, -r.config.MaxAge)
	for i, f := range files {
		tooMany := r.config.MaxBackups > 0 && i >= r.config.MaxBackups
		tooOld := r.config.MaxAge > 0 && f.modTime.Before(cutoff)
		if tooMany || tooOld {
			os.Remove(f.path)
		}
	}
}

// Close waits for background compression and closes the file.
func (r *FileRotator) Close() error {
	r.bg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes any buffered data to the file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// GetLogFiles returns the current log file followed by rotated ones.
func (r *FileRotator) GetLogFiles() ([]string, error) {
	files := []string{r.config.FilePath}
	matches, err := r.rotatedFiles()
	if err != nil {
		return files, err
	}
	return append(files, matches...), nil
}
