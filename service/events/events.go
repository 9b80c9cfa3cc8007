package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/service"

	"github.com/juju/errors"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	subscriberCapacity = 64
	defaultSubject     = "termovisor.events"
	metricsNamespace   = "termovisor"
)

// Events поток событий конвейера: лог, метрики Prometheus, подписчики и NATS.
// Инициализируется через NewEvents
type Events struct {
	ctx context.Context
	log *logrus.Entry

	nc      *nats.Conn
	subject string

	eventsTotal  *prometheus.CounterVec
	samplesTotal prometheus.Counter

	mu          sync.Mutex
	subscribers map[int]chan model.Event
	nextID      int
}

// ConfigEvents конфигурация конструктора NewEvents
type ConfigEvents struct {
	Log *logrus.Logger

	// Адрес NATS. Если пустой, публикация в NATS отключена
	NatsURL string
	Subject string

	// Куда регистрировать метрики. Если nil, prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// NewEvents конструктор Events
func NewEvents(ctx context.Context, config *ConfigEvents) (service.EventSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	events := Events{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "events",
			"scope":  "service",
		}),
		subject:     defaultSubject,
		subscribers: make(map[int]chan model.Event),
	}
	if config.Subject != "" {
		events.subject = config.Subject
	}

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_total",
		Help:      "Количество событий конвейера по типам",
	}, []string{"kind"})
	samplesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "temperature_samples_total",
		Help:      "Количество температурных значений в обработанных изображениях",
	})
	var err error
	if events.eventsTotal, err = registerCounterVec(config.Registerer, eventsTotal); err != nil {
		return nil, errors.Annotate(err, "ошибка регистрации метрик")
	}
	if events.samplesTotal, err = registerCounter(config.Registerer, samplesTotal); err != nil {
		return nil, errors.Annotate(err, "ошибка регистрации метрик")
	}

	if config.NatsURL != "" {
		events.nc, err = nats.Connect(config.NatsURL, nats.Name("termovisor"))
		if err != nil {
			return nil, errors.Annotatef(err, "ошибка подключения к NATS %s", config.NatsURL)
		}
		events.log.Infof("публикация событий в NATS %s, тема %s", config.NatsURL, events.subject)
	}

	return &events, nil
}

// Emit публикует событие всем получателям. Медленный подписчик пропускает события
func (m *Events) Emit(event model.Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	m.logEvent(event)

	m.eventsTotal.WithLabelValues(string(event.Kind)).Inc()
	if event.Kind == model.EventImageProcessed && event.Count > 0 {
		m.samplesTotal.Add(float64(event.Count))
	}

	m.mu.Lock()
	for id, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.log.Warnf("очередь подписчика %d переполнена, событие %s пропущено", id, event.Kind)
		}
	}
	m.mu.Unlock()

	if m.nc != nil {
		data, err := json.Marshal(event)
		if err != nil {
			m.log.Warnf("ошибка сериализации события: %v", err)
			return
		}
		if err := m.nc.Publish(m.subject, data); err != nil {
			m.log.Warnf("ошибка публикации события в NATS: %v", err)
		}
	}
}

// Subscribe подписка на события. Возвращает канал и функцию отписки
func (m *Events) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, subscriberCapacity)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(ch)
		}
	}
}

// Close закрывает подключение к NATS и каналы подписчиков
func (m *Events) Close() error {
	m.mu.Lock()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	if m.nc != nil {
		if err := m.nc.Drain(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m *Events) logEvent(event model.Event) {
	entry := m.log.WithFields(map[string]interface{}{
		"event": event.Kind,
		"run":   event.RunID,
	})
	switch event.Kind {
	case model.EventImageProcessed:
		entry.Debugf("изображение %s обработано, значений: %d", event.Image, event.Count)
	case model.EventImageSkipped:
		entry.Debugf("изображение %s пропущено", event.Image)
	case model.EventImageFailed:
		entry.Warnf("ошибка обработки изображения %s: %s", event.Image, event.Error)
	case model.EventBatchSent:
		entry.Infof("пакет %d отправлен, записей: %d", event.Batch, event.Count)
	case model.EventBatchSkipped:
		entry.Warnf("пакет %d пропущен (%d записей): %s", event.Batch, event.Count, event.Error)
	case model.EventBatchFailed:
		entry.Errorf("пакет %d не принят приёмником: %s", event.Batch, event.Error)
	case model.EventRunFinished:
		entry.Infof("обработка завершена, записей: %d", event.Count)
	default:
		entry.Debugf("событие %s", event.Kind)
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}
