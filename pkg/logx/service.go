package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./logs/crmbot.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the active sinks. Loggers obtained from it observe Apply.
type Service struct {
	mu     sync.Mutex
	stdout io.Writer
	file   *os.File
	path   string
	root   atomic.Pointer[zerolog.Logger]
}

// New creates the logging service and applies cfg immediately.
func New(cfg Config) (*Service, Logger) {
	return newService(os.Stdout, cfg)
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
}

func newService(stdout io.Writer, cfg Config) (*Service, Logger) {
	s := &Service{stdout: stdout}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply swaps level and sinks. The log file is reopened only when its path
// changes. With no sink enabled, console output is used.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(s.stdout))
	}
	if cfg.File.Enabled {
		if w := s.fileLocked(cfg.File.Path); w != nil {
			writers = append(writers, w)
		}
	} else {
		s.closeFileLocked()
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(s.stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) fileLocked(path string) io.Writer {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	if s.file != nil && s.path == path {
		return zerolog.SyncWriter(s.file)
	}
	s.closeFileLocked()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "logx: create log dir for %q: %v\n", path, err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		return nil
	}
	s.file, s.path = f, path
	return zerolog.SyncWriter(f)
}

func (s *Service) closeFileLocked() {
	if s.file != nil {
		_ = s.file.Close()
		s.file, s.path = nil, ""
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.path = nil, ""
	return err
}

func consoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

// ParseLevel accepts zerolog level names case-insensitively plus "warning".
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
