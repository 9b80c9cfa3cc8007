package model

import "time"

// StoredImage результат обработки одного изображения. Создаётся через NewStoredImage,
// чтобы Length всегда совпадала с количеством температур
type StoredImage struct {
	Side      string `json:"Side"`
	Port      int    `json:"Port"`
	Section   int    `json:"Section"`
	IsThermal bool   `json:"IsThermal"`
	Name      string `json:"Name"`
	// Пустой список означает, что изображение не обрабатывалось или обработка не удалась
	Temperatures []float64 `json:"temperatures"`
	Length       int       `json:"length"`
	// Проценты открытия задвижек (только для нетепловых изображений в режиме flat)
	Valves []float64 `json:"valves,omitempty"`
}

// NewStoredImage конструктор StoredImage
func NewStoredImage(src SourceImage, temperatures []float64) StoredImage {
	if temperatures == nil {
		temperatures = make([]float64, 0)
	}
	return StoredImage{
		Side:         src.Side,
		Port:         src.Port,
		Section:      src.Section,
		IsThermal:    src.IsThermal,
		Name:         src.Name,
		Temperatures: temperatures,
		Length:       len(temperatures),
	}
}

// AggregatedPayload результаты по одной коллекции источника с сохранением порядка изображений
type AggregatedPayload struct {
	Side   string        `json:"Side"`
	Date   time.Time     `json:"Date"`
	Images []StoredImage `json:"Images"`
}

// IngestResult итог обработки одного входящего запроса
type IngestResult struct {
	RunID    string
	Payloads []AggregatedPayload
	// Количество изображений, прошедших температурную или клапанную обработку
	Processed int
	Failed    int
	Records   int
	Delivery  DeliveryReport
}

// DeliveryReport отчёт об отправке записей в приёмник
type DeliveryReport struct {
	Batches int
	Sent    int
	Skipped int
	// Количество записей в успешно отправленных пакетах
	Delivered int
}

// IngestRun сводка по выполненному запросу для журнала в БД
type IngestRun struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Side        string    `json:"side"`
	Date        time.Time `json:"date"`
	Equipment   string    `json:"equipment"`
	Collections int       `json:"collections"`
	Images      int       `json:"images"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	Records     int       `json:"records"`
	Batches     int       `json:"batches"`
	Sent        int       `json:"sent"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
}
