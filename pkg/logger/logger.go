package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	logLevelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}

	levelsByName = map[string]LogLevel{
		"debug": DEBUG,
		"info":  INFO,
		"warn":  WARN,
		"error": ERROR,
		"fatal": FATAL,
	}

	currentLevel = INFO
	sink         = &fileSink{}
	mu           sync.RWMutex
)

// fileSink appends JSON log entries to a file, rotating by size and age.
type fileSink struct {
	file         *os.File
	path         string
	rotate       bool
	maxSizeBytes int64
	maxAgeDays   int
	currentSize  int64
	lastRotation time.Time
	mu           sync.Mutex
}

type logEntry struct {
	Level     string                 `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// SetLevelName sets the level from its config name ("debug", "info", ...).
// Unknown names leave the level unchanged.
func SetLevelName(name string) {
	if level, ok := levelsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		SetLevel(level)
	}
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// EnableFileLogging starts appending JSON entries to filePath. A leading ~/
// is expanded to the home directory. Rotation is off unless maxSizeMB or
// maxAgeDays is positive.
func EnableFileLogging(filePath string, rotate bool, maxSizeMB, maxAgeDays int) error {
	if strings.HasPrefix(filePath, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			filePath = filepath.Join(home, filePath[2:])
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	var size int64
	if stat, err := file.Stat(); err == nil {
		size = stat.Size()
	}

	sink.mu.Lock()
	if sink.file != nil {
		sink.file.Close()
	}
	sink.file = file
	sink.path = filePath
	sink.rotate = rotate
	sink.maxSizeBytes = int64(maxSizeMB) * 1024 * 1024
	sink.maxAgeDays = maxAgeDays
	sink.currentSize = size
	sink.lastRotation = time.Now()
	sink.mu.Unlock()

	log.Println("File logging enabled:", filePath)
	return nil
}

func DisableFileLogging() {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file != nil {
		sink.file.Close()
		sink.file = nil
	}
}

func (s *fileSink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}

	if s.needsRotation() {
		if err := s.rotateLocked(); err != nil {
			log.Printf("Failed to rotate log file: %v", err)
		}
	}

	if n, err := s.file.Write(line); err == nil {
		s.currentSize += int64(n)
	}
}

func (s *fileSink) needsRotation() bool {
	if !s.rotate {
		return false
	}
	if s.maxSizeBytes > 0 && s.currentSize >= s.maxSizeBytes {
		return true
	}
	if s.maxAgeDays > 0 {
		now := time.Now()
		if now.YearDay() != s.lastRotation.YearDay() || now.Year() != s.lastRotation.Year() {
			return true
		}
	}
	return false
}

func (s *fileSink) rotateLocked() error {
	s.file.Close()

	rotatedPath := fmt.Sprintf("%s.%s", s.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(s.path, rotatedPath); err != nil {
		if file, openErr := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); openErr == nil {
			s.file = file
		}
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new log file: %w", err)
	}
	s.file = file
	s.currentSize = 0
	s.lastRotation = time.Now()

	go s.pruneRotated()
	return nil
}

// pruneRotated deletes rotated files older than maxAgeDays.
func (s *fileSink) pruneRotated() {
	if s.maxAgeDays <= 0 {
		return
	}

	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	cutoff := time.Now().AddDate(0, 0, -s.maxAgeDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), base+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

func logMessage(level LogLevel, component string, message string, fields map[string]interface{}) {
	if level < GetLevel() {
		return
	}

	entry := logEntry{
		Level:     logLevelNames[level],
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: component,
		Message:   message,
		Fields:    fields,
	}

	if data, err := json.Marshal(entry); err == nil {
		sink.write(append(data, '\n'))
	}

	var fieldStr string
	if len(fields) > 0 {
		fieldStr = " " + formatFields(fields)
	}
	var componentStr string
	if component != "" {
		componentStr = fmt.Sprintf(" %s:", component)
	}

	log.Printf("[%s] [%s]%s %s%s",
		entry.Timestamp,
		logLevelNames[level],
		componentStr,
		message,
		fieldStr,
	)

	if level == FATAL {
		os.Exit(1)
	}
}

func formatFields(fields map[string]interface{}) string {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }

func DebugC(component string, message string) { logMessage(DEBUG, component, message, nil) }

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) { logMessage(INFO, "", message, nil) }

func InfoC(component string, message string) { logMessage(INFO, component, message, nil) }

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) { logMessage(WARN, "", message, nil) }

func WarnC(component string, message string) { logMessage(WARN, component, message, nil) }

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) { logMessage(ERROR, "", message, nil) }

func ErrorC(component string, message string) { logMessage(ERROR, component, message, nil) }

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func Fatal(message string) { logMessage(FATAL, "", message, nil) }

func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
