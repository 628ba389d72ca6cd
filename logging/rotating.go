package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	filePrefix         = "cleaning-validation-"
	fileSuffix         = ".log"
	defaultMaxFileSize = 100 * 1024 * 1024
	cleanupInterval    = 24 * time.Hour
)

var (
	errNoLogFile    = errors.New("no log file available")
	numberedFileRex = regexp.MustCompile(`^cleaning-validation-\d{4}-W\d{2}_(\d{2})\.log$`)
)

// RotatingLogger is an io.Writer that starts a new file every ISO week and
// whenever the current file would grow past maxFileSize. Files older than the
// retention period are removed by a background sweep.
type RotatingLogger struct {
	logDir      string
	retention   time.Duration
	maxFileSize int64

	mu          sync.Mutex
	currentFile *os.File
	currentWeek string
	currentSize atomic.Int64

	ctx         context.Context
	cancel      context.CancelFunc
	cleanupDone chan struct{}
	sweeping    atomic.Bool
	closeOnce   sync.Once
}

// NewRotatingLogger creates a writer in logDir. A maxFileSize of 0 disables
// size rotation.
func NewRotatingLogger(logDir string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}
}

// weekKey returns the ISO week in YYYY-Www form.
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// open creates the directory, opens the file for the current week and starts
// the retention sweep.
func (rl *RotatingLogger) open() error {
	if err := os.MkdirAll(rl.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rl.mu.Lock()
	err := rl.rotate(weekKey(time.Now()), false)
	rl.mu.Unlock()
	if err != nil {
		return err
	}

	rl.sweeping.Store(true)
	go rl.cleanupLoop()
	return nil
}

func (rl *RotatingLogger) cleanupLoop() {
	defer close(rl.cleanupDone)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			if _, err := rl.cleanupOldLogs(time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
			}
		}
	}
}

// rotate switches to the right file for week. Caller holds mu.
func (rl *RotatingLogger) rotate(week string, full bool) error {
	if rl.currentFile != nil {
		_ = rl.currentFile.Close()
		rl.currentFile = nil
	}

	name := rl.pickFile(week, full)
	path := filepath.Join(rl.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rl.currentFile = file
	rl.currentWeek = week
	rl.currentSize.Store(0)
	if info, err := file.Stat(); err == nil {
		rl.currentSize.Store(info.Size())
	}
	return nil
}

// pickFile returns the base file for week while it has room, otherwise the
// newest numbered file with room, otherwise the next numbered file.
func (rl *RotatingLogger) pickFile(week string, full bool) string {
	base := filePrefix + week + fileSuffix

	if !full {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil || rl.hasRoom(info.Size()) {
			return base
		}
	}

	highest, size := rl.highestNumbered(week)
	if highest > 0 && rl.hasRoom(size) && !full {
		return numberedName(week, highest)
	}
	return numberedName(week, highest+1)
}

func (rl *RotatingLogger) hasRoom(size int64) bool {
	return rl.maxFileSize <= 0 || size < rl.maxFileSize
}

func numberedName(week string, n int) string {
	return fmt.Sprintf("%s%s_%02d%s", filePrefix, week, n, fileSuffix)
}

// highestNumbered returns the highest sequence number used for week and the
// size of that file.
func (rl *RotatingLogger) highestNumbered(week string) (int, int64) {
	matches, _ := filepath.Glob(filepath.Join(rl.logDir, filePrefix+week+"_??"+fileSuffix))

	highest := 0
	var size int64
	for _, match := range matches {
		m := numberedFileRex.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n <= highest {
			continue
		}
		highest = n
		size = 0
		if info, err := os.Stat(match); err == nil {
			size = info.Size()
		}
	}
	return highest, size
}

// Write appends p to the current file, rotating first when the week changed or
// the write would overflow the size limit.
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(time.Now())
	switch {
	case rl.currentFile == nil || rl.currentWeek != week:
		if err := rl.rotate(week, false); err != nil {
			return 0, err
		}
	case rl.maxFileSize > 0 && rl.currentSize.Load() > 0 && rl.currentSize.Load()+int64(len(p)) > rl.maxFileSize:
		if err := rl.rotate(week, true); err != nil {
			return 0, err
		}
	}

	if rl.currentFile == nil {
		return 0, errNoLogFile
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

// cleanupOldLogs removes log files last modified before now minus retention.
func (rl *RotatingLogger) cleanupOldLogs(now time.Time) (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(rl.logDir, name)) == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Close stops the retention sweep and closes the current file.
func (rl *RotatingLogger) Close() error {
	var err error
	rl.closeOnce.Do(func() {
		rl.cancel()
		if rl.sweeping.Load() {
			select {
			case <-rl.cleanupDone:
			case <-time.After(time.Second):
			}
		}

		rl.mu.Lock()
		defer rl.mu.Unlock()
		if rl.currentFile != nil {
			err = rl.currentFile.Close()
			rl.currentFile = nil
		}
	})
	return err
}
