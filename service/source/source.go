package source

import (
	"bytes"
	"context"
	"encoding/json"
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
	requestTimeout = 30 * time.Second
)

// Source клиент источника изображений. Имплементирует интерфейс SourceSvc.
// Инициализируется конструктором NewSource
type Source struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	client    *resty.Client
	url       string
}

// ConfigSource конфигурация конструктора NewSource
type ConfigSource struct {
	Log            *logrus.Logger
	URL            string `conform:"trim" validate:"required,url"`
	RequestTimeout time.Duration
}

// NewSource конструктор Source
func NewSource(ctx context.Context, config *ConfigSource) (service.SourceSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка конфигурации источника")
	}

	timeout := requestTimeout
	if config.RequestTimeout != 0 {
		timeout = config.RequestTimeout
	}

	source := Source{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "source",
			"scope":  "service",
		}),
		validator: validator.Get(),
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		url: config.URL,
	}

	return &source, nil
}

// Fetch запрашивает коллекции изображений за дату и сторону
func (m *Source) Fetch(ctx context.Context, req model.InboundRequest) ([]model.SourceCollection, error) {
	params := map[string]string{
		"Date": req.Date.Format(time.RFC3339Nano),
		"Side": string(req.Side),
	}
	if req.Equipment != "" {
		params["Equipment"] = req.Equipment
	}

	m.log.Debugf("запрос коллекций %s: Date=%s Side=%s", m.url, params["Date"], params["Side"])
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(m.url)
	if err != nil {
		return nil, errors.Annotatef(err, "ошибка запроса к источнику %s", m.url)
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("источник вернул статус %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	collections, err := decodeCollections(resp.Body())
	if err != nil {
		return nil, errors.Annotate(err, "некорректный ответ источника")
	}

	images := 0
	for _, c := range collections {
		images += len(c.Images)
	}
	m.log.Infof("получено коллекций: %d, изображений: %d", len(collections), images)
	return collections, nil
}

// Ответ источника может быть одним объектом или списком коллекций
func decodeCollections(body []byte) ([]model.SourceCollection, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("пустой ответ")
	}

	var collections []model.SourceCollection
	if body[0] == '[' {
		if err := json.Unmarshal(body, &collections); err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		var single model.SourceCollection
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, errors.Trace(err)
		}
		collections = []model.SourceCollection{single}
	}

	for i, c := range collections {
		if c.Date.IsZero() {
			return nil, errors.NotValidf("коллекция %d без даты", i)
		}
		if c.Images == nil {
			collections[i].Images = make([]model.SourceImage, 0)
		}
	}
	return collections, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
