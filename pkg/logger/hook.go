package logger

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContextHook добавляет в запись поле source с местом вызова (файл:строка)
type ContextHook struct{}

// Levels уровни, для которых срабатывает хук
func (hook ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire добавляет поле source
func (hook ContextHook) Fire(entry *logrus.Entry) error {
	pc := make([]uintptr, 10)
	n := runtime.Callers(6, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "sirupsen/logrus") {
			entry.Data["source"] = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			break
		}
		if !more {
			break
		}
	}
	return nil
}
