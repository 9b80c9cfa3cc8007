package config

import (
	"log"
	"os"
	"strings"
	"sync"

	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

var (
	config Config
	once   sync.Once
)

const (
	FileName = "config.yaml"
	// Префикс переменных окружения, переопределяющих значения файла
	EnvPrefix = "TERMOVISOR"
	// Файл с переменными окружения (необязательный)
	EnvFile = ".env"
)

// Get единожды читает и возвращает конфигурацию
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		cfg, err := Load(filepath)
		if err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
		config = *cfg
	})
	return &config
}

// Load читает конфигурацию без кэширования. Отсутствующий файл допустим: тогда
// используются значения по умолчанию и переменные окружения
func Load(filepath string) (*Config, error) {
	if _, err := os.Stat(EnvFile); err == nil {
		if err = godotenv.Load(EnvFile); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, 1)
	if _, err := os.Stat(filepath); err == nil {
		files = append(files, filepath)
	}

	var cfg Config
	err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(&cfg, files...)
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

// Корректировки значений
func (m *Config) normalize() {
	if len(m.Pipeline.SideMap) == 0 {
		m.Pipeline.SideMap = map[string]string{"LEFT": "LEFT", "RIGHT": "RIGHT"}
	}
	sideMap := make(map[string]string, len(m.Pipeline.SideMap))
	for k, v := range m.Pipeline.SideMap {
		sideMap[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	m.Pipeline.SideMap = sideMap
	m.Pipeline.Mode = strings.ToLower(strings.TrimSpace(m.Pipeline.Mode))
	if m.Sink.BatchSize <= 0 {
		m.Sink.BatchSize = 1
	}
}
