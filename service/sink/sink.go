package sink

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/pkg/validator"
	"github.com/kirsrus/termovisor/service"

	"github.com/go-resty/resty/v2"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 120 * time.Second
	defaultPath    = "rest/postthermaldata/v1/Data"
)

// Sink отправка записей в приёмник пакетами. Имплементирует интерфейс SinkSvc.
// Инициализируется конструктором NewSink
type Sink struct {
	ctx    context.Context
	log    *logrus.Entry
	events service.EventSvc
	client *resty.Client
	url    string
}

// ConfigSink конфигурация конструктора NewSink
type ConfigSink struct {
	Log *logrus.Logger
	// Поток событий. Если nil, события не публикуются
	Events service.EventSvc

	BaseURL        string `conform:"trim" validate:"required,url"`
	Path           string `conform:"trim"`
	RequestTimeout time.Duration
}

// NewSink конструктор Sink
func NewSink(ctx context.Context, config *ConfigSink) (service.SinkSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка конфигурации приёмника")
	}

	timeout := requestTimeout
	if config.RequestTimeout != 0 {
		timeout = config.RequestTimeout
	}
	path := defaultPath
	if config.Path != "" {
		path = config.Path
	}

	sink := Sink{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "sink",
			"scope":  "service",
		}),
		events: config.Events,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Connection", "close").
			SetHeader("Content-Type", "application/json"),
		url: JoinURL(config.BaseURL, path),
	}

	return &sink, nil
}

// JoinURL адрес сервиса приёмника: base с завершающим '/' плюс path
func JoinURL(base, path string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimLeft(path, "/")
}

// Deliver делит записи на последовательные пакеты по batchSize (не меньше 1) и отправляет
// каждый пакет одним POST. Пакет, который не сериализуется (NaN/Inf), пропускается.
// Ответ приёмника не 2xx прерывает отправку, уже отправленные пакеты не откатываются
func (m *Sink) Deliver(ctx context.Context, records []model.Record, batchSize int) (model.DeliveryReport, error) {
	var report model.DeliveryReport
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		report.Batches++
		number := report.Batches

		payload, err := json.Marshal(batch)
		if err != nil {
			err = errors.Annotatef(model.ErrSerialization, "пакет %d: %v", number, err)
			report.Skipped++
			m.emit(model.Event{Kind: model.EventBatchSkipped, Batch: number, Count: len(batch), Error: err.Error()})
			continue
		}

		m.log.Debugf("POST %s записей=%d байт=%d", m.url, len(batch), len(payload))
		resp, err := m.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(m.url)
		if err != nil {
			err = errors.Annotatef(model.ErrDelivery, "пакет %d: %v", number, err)
			m.emit(model.Event{Kind: model.EventBatchFailed, Batch: number, Count: len(batch), Error: err.Error()})
			return report, err
		}
		if !resp.IsSuccess() {
			err = errors.Annotatef(model.ErrDelivery, "пакет %d: статус %d: %s", number, resp.StatusCode(), truncate(resp.String(), 200))
			m.emit(model.Event{Kind: model.EventBatchFailed, Batch: number, Count: len(batch), Error: err.Error()})
			return report, err
		}

		report.Sent++
		report.Delivered += len(batch)
		m.emit(model.Event{Kind: model.EventBatchSent, Batch: number, Count: len(batch)})
	}

	return report, nil
}

func (m *Sink) emit(event model.Event) {
	if m.events == nil {
		if event.Error != "" {
			m.log.Warn(event.Error)
		}
		return
	}
	m.events.Emit(event)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
