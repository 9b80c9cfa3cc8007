package logger

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxSize    = 30 // MB
	RotateLocalTime  = true
	RotateMaxAge     = 365 // Дней
	RotateMaxBackups = 10  // Колличество файлов
	RotateCompress   = true
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Config конфигурация лога
type Config struct {
	File    string
	Level   logrus.Level
	Console bool
}

// Get быстрый конфиг на консоль
func Get(level logrus.Level) *logrus.Logger {
	return GetWithConfig(Config{
		File:    "",
		Level:   level,
		Console: true,
	})
}

// GetWithConfig логирование с конфигурацией
func GetWithConfig(config Config) *logrus.Logger {
	once.Do(func() {
		logger = New(config)
		logger.Infof("----------===== начало записи в лог %s =====----------", time.Now().Format(time.RFC3339))
	})
	return logger
}

// New создаёт новый логгер без кэширования
func New(config Config) *logrus.Logger {
	log := logrus.New()
	log.Level = config.Level
	log.Formatter = &logrus.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "2006.01.02 15:04:05",
	}

	if config.Console || config.File == "" {
		log.Out = os.Stdout
	} else {
		log.Out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    RotateMaxSize, // MB
			MaxAge:     RotateMaxAge,  // Day
			MaxBackups: RotateMaxBackups,
			LocalTime:  RotateLocalTime,
			Compress:   RotateCompress,
		})
	}
	log.AddHook(ContextHook{})
	return log
}

// Discard логгер, который никуда не пишет. Для компонентов, которым не передали лог
func Discard() *logrus.Logger {
	log := logrus.New()
	log.Out = ioutil.Discard
	return log
}

// ParseLevel уровень логирования из строки конфигурации. При ошибке WarnLevel
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.WarnLevel
	}
	return lvl
}

// Path полный путь к файлу лога
func Path(dir, filename string) string {
	if filename == "" {
		return ""
	}
	return filepath.Join(dir, filename)
}
