package db

import (
	"time"

	"github.com/kirsrus/termovisor/model"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// IngestRun журнал выполненных обработок
	IngestRun struct {
		GormModelUnscoped
		RunID       string `gorm:"uniqueIndex;size:36"`
		Side        string `gorm:"size:16"`
		Date        time.Time
		Equipment   string
		Collections int
		Images      int
		Processed   int
		Failed      int
		Records     int
		Batches     int
		Sent        int
		Skipped     int
		Error       string
	}
)

// TableName имя таблицы
func (IngestRun) TableName() string {
	return "ingest_runs"
}

// ToIngestRun маппинг данных в структуру model.IngestRun
func (m IngestRun) ToIngestRun() model.IngestRun {
	return model.IngestRun{
		RunID:       m.RunID,
		CreatedAt:   m.CreatedAt,
		Side:        m.Side,
		Date:        m.Date,
		Equipment:   m.Equipment,
		Collections: m.Collections,
		Images:      m.Images,
		Processed:   m.Processed,
		Failed:      m.Failed,
		Records:     m.Records,
		Batches:     m.Batches,
		Sent:        m.Sent,
		Skipped:     m.Skipped,
		Error:       m.Error,
	}
}

// FromIngestRun заполняет текущую структуру из структуры model.IngestRun
func (m *IngestRun) FromIngestRun(run model.IngestRun) {
	*m = IngestRun{
		GormModelUnscoped: GormModelUnscoped{CreatedAt: run.CreatedAt},
		RunID:             run.RunID,
		Side:              run.Side,
		Date:              run.Date,
		Equipment:         run.Equipment,
		Collections:       run.Collections,
		Images:            run.Images,
		Processed:         run.Processed,
		Failed:            run.Failed,
		Records:           run.Records,
		Batches:           run.Batches,
		Sent:              run.Sent,
		Skipped:           run.Skipped,
		Error:             run.Error,
	}
}
