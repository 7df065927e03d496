package infra

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger adapta *slog.Logger à interface badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(b.format(msg, args), "component", "badger")
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(b.format(msg, args), "component", "badger")
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(b.format(msg, args), "component", "badger")
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(b.format(msg, args), "component", "badger")
}

// badger termina as mensagens com \n
func (b *badgerLogger) format(msg string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, args...))
}
