// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package obslog configures the gateway's shared logrus instance: a custom
// line formatter carrying fingerprint/provider/attempt fields, and optional
// rotation to a bounded set of log files via lumberjack.
package obslog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields every call site is expected to attach where applicable, kept as
// named constants so callers never typo a key the formatter special-cases.
const (
	FieldFingerprint = "fingerprint"
	FieldProvider    = "provider"
	FieldAttempt     = "attempt"
	FieldRequestID   = "request_id"
)

// LineFormatter renders one log entry as:
// [2026-01-02 15:04:05] [info ] [fp:abcd1234] message | key=value key=value
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	levelStr := fmt.Sprintf("%-5s", level)

	fp := "--------"
	if v, ok := entry.Data[FieldFingerprint].(string); ok && v != "" {
		if len(v) > 8 {
			v = v[:8]
		}
		fp = v
	}

	var line string
	if entry.Caller != nil {
		line = fmt.Sprintf("[%s] [%s] [fp:%s] [%s:%d] %s", timestamp, levelStr, fp, filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		line = fmt.Sprintf("[%s] [%s] [fp:%s] %s", timestamp, levelStr, fp, message)
	}

	extra := false
	for k, v := range entry.Data {
		if k == FieldFingerprint {
			continue
		}
		if !extra {
			line += " |"
			extra = true
		}
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	line += "\n"

	buffer.WriteString(line)
	return buffer.Bytes(), nil
}

var setupOnce sync.Once

// Config tunes log destination and rotation.
type Config struct {
	Level      string
	ToFile     bool
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig logs to stdout at info level.
func DefaultConfig() Config {
	return Config{Level: "info", ToFile: false, Directory: "logs", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 14, Compress: true}
}

// Setup configures the shared logrus instance once per process. Subsequent
// calls are no-ops.
func Setup(cfg Config) error {
	var setupErr error
	setupOnce.Do(func() {
		log.SetReportCaller(true)
		log.SetFormatter(&LineFormatter{})

		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)

		if cfg.ToFile {
			if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
				setupErr = fmt.Errorf("obslog: creating log directory: %w", err)
				return
			}
			log.SetOutput(&lumberjack.Logger{
				Filename:   filepath.Join(cfg.Directory, "gateway.log"),
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			})
		} else {
			log.SetOutput(os.Stdout)
		}
	})
	return setupErr
}

// SetLevel changes the shared logger's level in place (hot reload).
// Unparseable levels are ignored so a bad reload can't silence the process.
func SetLevel(level string) {
	if parsed, err := log.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
}

// WithFingerprint returns a logger entry pre-populated with a request
// fingerprint, the key every downstream log line in one request's lifetime
// should carry.
func WithFingerprint(fingerprint string) *log.Entry {
	return log.WithField(FieldFingerprint, fingerprint)
}
