package manager

import (
	"context"
	"time"

	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/service"
	"github.com/kirsrus/termovisor/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	archiveDays       = 30
	cleanBaseInterval = time.Minute * 30
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	WebSvc  service.WebSvc
	DbStore store.DbStore
	// Необязательный поток событий, закрывается при завершении работы
	EventSvc service.EventSvc

	// Сколько дней хранить журнал обработок
	ArchiveDays int
	// Период очистки журнала
	CleanBaseInterval time.Duration
}

// Manager запуск и остановка всех долгоживущих частей сервиса. Инициируется через NewManager
type Manager struct {
	ctx context.Context
	log *logrus.Entry

	webSvc   service.WebSvc
	dbStore  store.DbStore
	eventSvc service.EventSvc

	archiveDays       int
	cleanBaseInterval time.Duration
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.WebSvc == nil {
		return nil, errors.New("не передан сервис WEB")
	}
	if config.DbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),

		webSvc:   config.WebSvc,
		dbStore:  config.DbStore,
		eventSvc: config.EventSvc,

		archiveDays:       archiveDays,
		cleanBaseInterval: cleanBaseInterval,
	}
	if config.ArchiveDays != 0 {
		manager.archiveDays = config.ArchiveDays
	}
	if config.CleanBaseInterval != 0 {
		manager.cleanBaseInterval = config.CleanBaseInterval
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m Manager) configToLog() {
	m.log.Debugf("archiveDays: %d", m.archiveDays)
	m.log.Debugf("cleanBaseInterval: %s", m.cleanBaseInterval)
}

// Serve запускает WEB-сервер и очистку журнала. Блокируется до отмены контекста
// или до первой ошибки
func (m Manager) Serve() error {
	g, ctx := errgroup.WithContext(m.ctx)

	g.Go(func() error {
		err := m.webSvc.Serve(ctx)
		if err != nil && errors.Cause(err) != context.Canceled {
			return errors.Trace(err)
		}
		return nil
	})

	// Хаускипер очистки журнала обработок от старых записей
	g.Go(func() error {
		ticker := time.NewTicker(m.cleanBaseInterval)
		defer ticker.Stop()
		for {
			if err := m.dbStore.Clean(m.archiveDays); err != nil {
				m.log.Warnf("ошибка очистки журнала: %v", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err := g.Wait()
	if m.eventSvc != nil {
		if cerr := m.eventSvc.Close(); cerr != nil {
			m.log.Warnf("ошибка закрытия потока событий: %v", cerr)
		}
	}
	return errors.Trace(err)
}
