package service

import (
	"context"

	"github.com/kirsrus/termovisor/model"

	"gocv.io/x/gocv"
)

// SourceSvc клиент источника изображений
//go:generate mockery --dir . --name SourceSvc --output ./mocks
type SourceSvc interface {
	// Запрашивает коллекции изображений за дату и сторону запроса. Ответ источника может быть
	// одним объектом или списком, результат всегда список
	Fetch(ctx context.Context, req model.InboundRequest) ([]model.SourceCollection, error)
}

// SinkSvc отправка записей в приёмник пакетами
//go:generate mockery --dir . --name SinkSvc --output ./mocks
type SinkSvc interface {
	// Делит записи на последовательные пакеты по batchSize и отправляет каждый пакет одним POST.
	// Пакет с NaN/Inf пропускается. Отказ приёмника прерывает отправку оставшихся пакетов
	Deliver(ctx context.Context, records []model.Record, batchSize int) (model.DeliveryReport, error)
}

// RegionDetector детектор областей (сегментация). Принимает кадр BGR размера кадра детектора
// и возвращает полигоны в его координатах
//go:generate mockery --dir . --name RegionDetector --output ./mocks
type RegionDetector interface {
	DetectRegions(bgr gocv.Mat) ([]model.Polygon, error)
}

// KeypointDetector детектор ключевых точек стрелок. Принимает кадр BGR исходного размера,
// точки возвращаются в координатах этого кадра
//go:generate mockery --dir . --name KeypointDetector --output ./mocks
type KeypointDetector interface {
	DetectKeypoints(bgr gocv.Mat) ([]model.KeypointInstance, error)
}

// EventSvc поток событий конвейера. Emit не блокирует и не возвращает ошибок
//go:generate mockery --dir . --name EventSvc --output ./mocks
type EventSvc interface {
	// Публикует событие всем получателям
	Emit(model.Event)
	// Подписка на события. Возвращает канал и функцию отписки
	Subscribe() (<-chan model.Event, func())
	// Освобождает ресурсы (подключение к NATS)
	Close() error
}

// WebSvc HTTP интерфейс сервиса
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	// Запускает сервер и блокируется до отмены контекста
	Serve(ctx context.Context) error
}
