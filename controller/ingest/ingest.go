package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirsrus/termovisor/controller"
	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/imaging"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/pkg/thermal"
	"github.com/kirsrus/termovisor/pkg/validator"
	"github.com/kirsrus/termovisor/service"
	"github.com/kirsrus/termovisor/store"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Режимы формирования записей для приёмника
const (
	// Одна запись с вектором температур на изображение
	ModeAggregated = "aggregated"
	// Запись на каждое значение температуры и запись с задвижками на нетепловое изображение
	ModeFlat = "flat"
)

const (
	defaultTempMin      = 98.0
	defaultTempMax      = 550.0
	defaultMaxVectorLen = 15000
	defaultBatchSize    = 26
	defaultEquipment    = "Forno"
)

// Результат обработки одного изображения
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Ingest обработка входящего запроса. Имплементирует интерфейс IngestCtl.
// Инициализируется через NewIngest
type Ingest struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator

	source service.SourceSvc
	sink   service.SinkSvc
	events service.EventSvc
	valve  controller.ValveCtl
	db     store.DbStore
	images store.ImageStore

	mode              string
	tempMin           float64
	tempMax           float64
	maxVectorLen      int
	processNonThermal bool
	sideMap           map[string]string
	equipment         string
	fieldName         string
	batchSize         int
}

// ConfigIngest конфигурация конструктора NewIngest
type ConfigIngest struct {
	Log *logrus.Logger

	// Необязательные зависимости. Без Valve нетепловые изображения в режиме flat пропускаются,
	// без DbStore журнал обработок не ведётся, без Images команды не находят изображения по image_id
	Valve   controller.ValveCtl
	DbStore store.DbStore
	Images  store.ImageStore

	Mode              string
	TempMin           float64
	TempMax           float64
	MaxVectorLen      int
	ProcessNonThermal bool
	SideMap           map[string]string
	DefaultEquipment  string
	FieldName         string
	BatchSize         int
}

// NewIngest конструктор Ingest
func NewIngest(ctx context.Context, source service.SourceSvc, sink service.SinkSvc, events service.EventSvc, config *ConfigIngest) (controller.IngestCtl, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if source == nil {
		return nil, errors.New("не передан источник изображений")
	}
	if sink == nil {
		return nil, errors.New("не передан приёмник записей")
	}
	if events == nil {
		return nil, errors.New("не передан поток событий")
	}

	ingest := Ingest{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "ingest",
			"scope":  "controller",
		}),
		validator: validator.Get(),

		source: source,
		sink:   sink,
		events: events,
		valve:  config.Valve,
		db:     config.DbStore,
		images: config.Images,

		mode:              ModeAggregated,
		tempMin:           defaultTempMin,
		tempMax:           defaultTempMax,
		maxVectorLen:      defaultMaxVectorLen,
		processNonThermal: config.ProcessNonThermal,
		sideMap:           map[string]string{"LEFT": "LEFT", "RIGHT": "RIGHT"},
		equipment:         defaultEquipment,
		fieldName:         model.DefaultSampleField,
		batchSize:         defaultBatchSize,
	}
	if config.Mode != "" {
		ingest.mode = strings.ToLower(strings.TrimSpace(config.Mode))
	}
	if ingest.mode != ModeAggregated && ingest.mode != ModeFlat {
		return nil, errors.NotValidf("режим %q", config.Mode)
	}
	if config.TempMin != 0 || config.TempMax != 0 {
		ingest.tempMin, ingest.tempMax = config.TempMin, config.TempMax
	}
	if err := model.ValidateRange(ingest.tempMin, ingest.tempMax); err != nil {
		return nil, errors.Trace(err)
	}
	if config.MaxVectorLen != 0 {
		ingest.maxVectorLen = config.MaxVectorLen
	}
	if len(config.SideMap) != 0 {
		ingest.sideMap = make(map[string]string, len(config.SideMap))
		for k, v := range config.SideMap {
			ingest.sideMap[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	if strings.TrimSpace(config.DefaultEquipment) != "" {
		ingest.equipment = strings.TrimSpace(config.DefaultEquipment)
	}
	if config.FieldName != "" {
		ingest.fieldName = config.FieldName
	}
	if config.BatchSize > 0 {
		ingest.batchSize = config.BatchSize
	}

	ingest.configToLog()

	return &ingest, nil
}

// Вывести значения конфигурации в лог
func (m Ingest) configToLog() {
	m.log.Debugf("mode: %s", m.mode)
	m.log.Debugf("temperature: %v..%v", m.tempMin, m.tempMax)
	m.log.Debugf("maxVectorLen: %d", m.maxVectorLen)
	m.log.Debugf("processNonThermal: %v", m.processNonThermal)
	m.log.Debugf("equipment: %s", m.equipment)
	m.log.Debugf("batchSize: %d", m.batchSize)
}

// Process выгружает коллекции, обрабатывает каждое изображение и отправляет записи в приёмник.
// Ошибка одного изображения не прерывает обработку. При отказе приёмника результат
// возвращается вместе с ошибкой model.ErrDelivery
func (m *Ingest) Process(ctx context.Context, req model.InboundRequest) (*model.IngestResult, error) {
	req.Side = model.Side(strings.ToUpper(strings.TrimSpace(string(req.Side))))
	if err := m.validator.ValidateWithConform(&req); err != nil {
		return nil, errors.NotValidf("запрос: %v", err)
	}

	runID := uuid.New().String()
	run := model.IngestRun{
		RunID:     runID,
		CreatedAt: time.Now(),
		Side:      string(req.Side),
		Date:      req.Date,
		Equipment: m.equipmentFor(req),
	}

	// FETCHED
	collections, err := m.source.Fetch(ctx, req)
	if err != nil {
		err = errors.Annotate(err, "ошибка получения изображений от источника")
		run.Error = err.Error()
		m.finish(run)
		return nil, err
	}

	result := &model.IngestResult{
		RunID:    runID,
		Payloads: make([]model.AggregatedPayload, 0, len(collections)),
	}
	records := make([]model.Record, 0)

	// PER_IMAGE_PROCESSED и AGGREGATED
	for _, col := range collections {
		stored := make([]model.StoredImage, 0, len(col.Images))
		for _, im := range col.Images {
			if m.images != nil {
				m.images.Put(im)
			}
			run.Images++

			temps, valves, res, err := m.processImage(im)
			switch res {
			case outcomeProcessed:
				result.Processed++
				count := len(temps)
				if valves != nil {
					count = len(valves)
				}
				m.emit(model.Event{Kind: model.EventImageProcessed, RunID: runID, Image: im.Key(), Count: count})
			case outcomeSkipped:
				m.emit(model.Event{Kind: model.EventImageSkipped, RunID: runID, Image: im.Key()})
			case outcomeFailed:
				result.Failed++
				m.emit(model.Event{Kind: model.EventImageFailed, RunID: runID, Image: im.Key(), Error: err.Error()})
			}

			image := model.NewStoredImage(im, temps)
			image.Valves = valves
			stored = append(stored, image)

			records = append(records, m.recordsFor(col, im, image, run.Equipment)...)
		}
		result.Payloads = append(result.Payloads, model.AggregatedPayload{
			Side:   col.Side,
			Date:   col.Date,
			Images: stored,
		})
	}
	result.Records = len(records)

	// SINK_DELIVERED. Отправка привязана к контексту сервиса: отключение клиента
	// не прерывает её на середине, остановка сервиса прерывает
	var deliveryErr error
	if len(records) > 0 {
		report, err := m.sink.Deliver(m.ctx, records, m.batchSize)
		result.Delivery = report
		if err != nil {
			deliveryErr = errors.Annotatef(err, "отправлено пакетов %d из %d", report.Sent, report.Batches)
			run.Error = deliveryErr.Error()
		}
	} else {
		m.log.Info("нет записей для отправки в приёмник")
	}

	run.Collections = len(collections)
	run.Processed = result.Processed
	run.Failed = result.Failed
	run.Records = result.Records
	run.Batches = result.Delivery.Batches
	run.Sent = result.Delivery.Sent
	run.Skipped = result.Delivery.Skipped
	m.finish(run)

	return result, deliveryErr
}

// Обрабатывает одно изображение. Паника и любые ошибки остаются в пределах изображения
func (m *Ingest) processImage(im model.SourceImage) (temps []float64, valves []float64, res outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			temps, valves, res = nil, nil, outcomeFailed
			err = errors.Errorf("паника при обработке изображения: %v", r)
		}
	}()

	rgb, err := imaging.Decode(im.Base64String)
	defer rgb.Close()
	if err != nil {
		return nil, nil, outcomeFailed, errors.Trace(err)
	}

	switch {
	case im.IsThermal || m.processNonThermal:
		matrix, err := thermal.BuildMatrix(rgb, m.tempMin, m.tempMax)
		if err != nil {
			return nil, nil, outcomeFailed, errors.Trace(err)
		}
		return matrix.Vector(m.maxVectorLen), nil, outcomeProcessed, nil

	case m.mode == ModeFlat && m.valve != nil:
		valves, err := m.valve.Valves(rgb)
		if err != nil {
			return nil, nil, outcomeFailed, errors.Trace(err)
		}
		if valves == nil {
			valves = make([]float64, 0)
		}
		return nil, valves, outcomeProcessed, nil
	}

	return nil, nil, outcomeSkipped, nil
}

// Записи для приёмника по одному изображению
func (m *Ingest) recordsFor(col model.SourceCollection, im model.SourceImage, image model.StoredImage, equipment string) []model.Record {
	timestamp := model.IsoZ(col.Date)
	side := m.NormalizeSide(im.Side)

	if m.mode == ModeAggregated {
		if len(image.Temperatures) == 0 {
			return nil
		}
		return []model.Record{model.SinkRecord{
			Timestamp: timestamp,
			Equipment: equipment,
			Side:      side,
			Port:      im.Port,
			Section:   SectionLabel(im.Name, im.Section),
			FieldName: m.fieldName,
			Samples:   image.Temperatures,
		}}
	}

	res := make([]model.Record, 0, len(image.Temperatures)+1)
	for _, t := range image.Temperatures {
		res = append(res, model.TemperatureRecord{
			Timestamp:   timestamp,
			Side:        side,
			Port:        im.Port,
			Section:     im.Section,
			Temperature: t,
		})
	}
	if !im.IsThermal && image.Valves != nil {
		record := model.ValveRecord{
			Timestamp: timestamp,
			Side:      side,
			Port:      im.Port,
			Section:   im.Section,
		}
		record.SetValves(image.Valves)
		res = append(res, record)
	}
	return res
}

// NormalizeSide сторона по таблице нормализации. Поиск по верхнему регистру, неизвестная
// сторона возвращается без изменений
func (m *Ingest) NormalizeSide(side string) string {
	if side == "" {
		return side
	}
	if mapped, ok := m.sideMap[strings.ToUpper(strings.TrimSpace(side))]; ok && mapped != "" {
		return mapped
	}
	return side
}

// SectionLabel метка секции: имя изображения, если оно не пустое, иначе S<номер>
func SectionLabel(name string, section int) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fmt.Sprintf("S%d", section)
}

func (m *Ingest) equipmentFor(req model.InboundRequest) string {
	if equipment := strings.TrimSpace(req.Equipment); equipment != "" {
		return equipment
	}
	return m.equipment
}

func (m *Ingest) emit(event model.Event) {
	m.events.Emit(event)
}

// Сохраняет сводку в журнал и публикует событие завершения
func (m *Ingest) finish(run model.IngestRun) {
	if m.db != nil {
		if err := m.db.SaveRun(run); err != nil {
			m.log.Warnf("ошибка сохранения журнала обработки: %v", err)
		}
	}
	m.emit(model.Event{Kind: model.EventRunFinished, RunID: run.RunID, Count: run.Records, Error: run.Error})
}
