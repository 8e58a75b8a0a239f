// internal/logging/levels.go
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below Debug and carries per-record ingestion
// detail.
const TraceLevel = zapcore.DebugLevel - 1

var levelNames = map[string]zapcore.Level{
	"trace":   TraceLevel,
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
	"dpanic":  zapcore.DPanicLevel,
	"panic":   zapcore.PanicLevel,
	"fatal":   zapcore.FatalLevel,
}

// LevelFromString parses a level name, case-insensitively. On failure it
// returns InfoLevel alongside the error.
func LevelFromString(level string) (zapcore.Level, error) {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown level %q", level)
}
