package db

import (
	"context"
	"time"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	defaultLastRuns = 10
	maxLastRuns     = 100

	saveRunTimeout = 5 * time.Second // Время на запись сводки, в том числе после остановки сервиса
)

// Db обращение к базе данных. Инициируется через NewDb
type Db struct {
	ctx context.Context
	log *logrus.Entry
	db  *gorm.DB
}

// ConfigDb конфигурация класса NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
}

// NewDb конструктор класса Db
func NewDb(ctx context.Context, config *ConfigDb) (store.DbStore, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурации не указана строка подключения")
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	err = conn.AutoMigrate(IngestRun{})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		db: conn,
	}

	return &db, nil
}

// SaveRun сохраняет сводку по выполненному запросу. Запись не зависит от контекста
// сервиса: сводка запроса, завершающегося во время остановки, тоже сохраняется
func (m Db) SaveRun(run model.IngestRun) error {
	if run.RunID == "" {
		return errors.New("не указан идентификатор запуска")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveRunTimeout)
	defer cancel()

	var row IngestRun
	row.FromIngestRun(run)
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Annotatef(err, "ошибка сохранения запуска %s", run.RunID)
	}
	m.log.Debugf("сохранён запуск %s", run.RunID)
	return nil
}

// LastRuns возвращает не более limit последних сводок, новые первыми
func (m Db) LastRuns(limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = defaultLastRuns
	}
	if limit > maxLastRuns {
		limit = maxLastRuns
	}

	rows := make([]IngestRun, 0)
	err := m.db.WithContext(m.ctx).Order("created_at desc").Order("id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, errors.Trace(err)
	}

	res := make([]model.IngestRun, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.ToIngestRun())
	}
	return res, nil
}

// Clean очищает записи в БД старше days дней
func (m Db) Clean(days int) error {
	if days <= 0 {
		return nil
	}
	m.log.Info("запуск процесса очистки старых записей журнала")

	lastDate := time.Now().AddDate(0, 0, -days)
	res := m.db.WithContext(m.ctx).Where("created_at < ?", lastDate).Delete(&IngestRun{})
	if res.Error != nil {
		m.log.Warn(res.Error)
		return errors.Trace(res.Error)
	}
	if res.RowsAffected > 0 {
		m.log.Infof("удалено записей журнала: %d", res.RowsAffected)
	}
	return nil
}
