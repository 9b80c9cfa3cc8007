package model

import "time"

// EventKind тип события конвейера
type EventKind string

const (
	EventImageProcessed EventKind = "image_processed"
	EventImageSkipped   EventKind = "image_skipped"
	EventImageFailed    EventKind = "image_failed"
	EventBatchSent      EventKind = "batch_sent"
	EventBatchSkipped   EventKind = "batch_skipped"
	EventBatchFailed    EventKind = "batch_failed"
	EventRunFinished    EventKind = "run_finished"
)

// Event событие конвейера, передаваемое в побочный канал (лог, метрики, подписчики)
type Event struct {
	Kind  EventKind `json:"kind"`
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
	// Ключ изображения SIDE/port/section/name для событий по изображениям
	Image string `json:"image,omitempty"`
	// Количество температур у изображения или записей в пакете
	Count int `json:"count"`
	// Номер пакета для событий приёмника
	Batch int    `json:"batch,omitempty"`
	Error string `json:"error,omitempty"`
}
