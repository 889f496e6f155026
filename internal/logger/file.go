package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation defaults, also used as config defaults.
const (
	DefaultLogPath   = "logs/mailrelay.log"
	DefaultMaxSizeMB = 100
	DefaultMaxFiles  = 5
)

// FileConfig controls the rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int // 0 keeps rotated files forever
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Path == "" {
		c.Path = DefaultLogPath
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	return c
}

// NewFileWriter opens a lumberjack writer that rotates by size and gzips
// rotated files. The file and its directory are created on first write.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	cfg = cfg.withDefaults()
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
