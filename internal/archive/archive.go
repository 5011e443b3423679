package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Archive writes raw APRS feed lines to daily log files for later replay.
// The previous day's file is gzip-compressed after rotation at midnight UTC.
type Archive struct {
	dir      string
	log      *logrus.Logger
	file     *os.File
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates an Archive writing under dir
func New(dir string, log *logrus.Logger) *Archive {
	return &Archive{
		dir:      dir,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start opens today's file and starts the rotation timer
func (a *Archive) Start() error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	a.mu.Lock()
	err := a.openCurrent()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go a.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (a *Archive) Stop() error {
	close(a.stopChan)
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// WriteLine appends one raw feed line, prefixed with its receive time
func (a *Archive) WriteLine(text string, received time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		if err := a.openCurrent(); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(a.file, "%s %s\n", received.UTC().Format(time.RFC3339), text)
	return err
}

// rotationTimer rotates at midnight UTC
func (a *Archive) rotationTimer() {
	defer a.wg.Done()

	for {
		now := time.Now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		select {
		case <-time.After(nextMidnight.Sub(now)):
			if err := a.rotateAndCompress(); err != nil {
				a.log.WithError(err).Error("Archive rotation failed")
			}
		case <-a.stopChan:
			return
		}
	}
}

// rotateAndCompress closes the current file, compresses yesterday's, and
// opens a fresh file for the new day
func (a *Archive) rotateAndCompress() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		a.file.Close() //nolint:errcheck
		a.file = nil
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	yesterdayFile := filepath.Join(a.dir, fileName(yesterday))

	if _, err := os.Stat(yesterdayFile); err == nil {
		if err := a.compressFile(yesterdayFile); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
	}

	return a.openCurrent()
}

// compressFile gzips a file in place and removes the original
func (a *Archive) compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close() //nolint:errcheck
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// openCurrent opens today's file for appending; caller holds a.mu
func (a *Archive) openCurrent() error {
	path := filepath.Join(a.dir, fileName(time.Now().UTC()))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	a.file = file
	return nil
}

func fileName(day time.Time) string {
	return fmt.Sprintf("aprs_%s.log", day.Format("2006-01-02"))
}
