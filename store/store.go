package store

import (
	"github.com/kirsrus/termovisor/model"
)

// DbStore журнал выполненных обработок
//go:generate mockery --dir . --name DbStore --output ./mocks
type DbStore interface {
	// Сохраняет сводку по выполненному запросу
	SaveRun(model.IngestRun) error
	// Возвращает не более limit последних сводок, новые первыми
	LastRuns(limit int) ([]model.IngestRun, error)
	// Очищает записи в БД старше days дней
	Clean(days int) error
}

// ImageStore кэш исходных изображений последних выгрузок для команд по image_id.
// Изображения хранятся ограниченное время и не сохраняются на диск
//go:generate mockery --dir . --name ImageStore --output ./mocks
type ImageStore interface {
	// Запоминает изображение под ключом SIDE/port/section/name
	Put(img model.SourceImage)
	// Изображение в base64 по ключу
	Get(id string) (string, bool)
	// Количество изображений в кэше
	Count() int
}
