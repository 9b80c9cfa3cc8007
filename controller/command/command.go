package command

import (
	"context"
	"time"

	"github.com/kirsrus/termovisor/controller"
	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/imaging"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/pkg/thermal"
	"github.com/kirsrus/termovisor/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Количество сводок обработок в ответе GET_SYSTEM_STATUS
const lastRunsLimit = 10

// Command выполнение команд. Имплементирует интерфейс CommandCtl.
// Инициализируется через NewCommand
type Command struct {
	ctx context.Context
	log *logrus.Entry

	roi    controller.RoiCtl
	valve  controller.ValveCtl
	images store.ImageStore
	db     store.DbStore

	started       time.Time
	returnOverlay bool
}

// ConfigCommand конфигурация конструктора NewCommand
type ConfigCommand struct {
	Log *logrus.Logger

	// Необязательные хранилища
	Images  store.ImageStore
	DbStore store.DbStore

	// Возвращать разметку в GET_ANGLES, если в команде не указано иное
	ReturnOverlay bool
	// Время запуска сервиса для расчёта uptime
	Started time.Time
}

// NewCommand конструктор Command
func NewCommand(ctx context.Context, roi controller.RoiCtl, valve controller.ValveCtl, config *ConfigCommand) (controller.CommandCtl, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if roi == nil {
		return nil, errors.New("не передан контроллер области интереса")
	}
	if valve == nil {
		return nil, errors.New("не передан контроллер задвижек")
	}

	command := Command{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "command",
			"scope":  "controller",
		}),
		roi:           roi,
		valve:         valve,
		images:        config.Images,
		db:            config.DbStore,
		started:       time.Now(),
		returnOverlay: config.ReturnOverlay,
	}
	if !config.Started.IsZero() {
		command.started = config.Started
	}

	return &command, nil
}

// Execute выполняет команду. Ошибки данных возвращаются как errors.NotValid или errors.NotFound
func (m *Command) Execute(ctx context.Context, cmd model.Command) (interface{}, error) {
	switch c := cmd.(type) {
	case model.PingCommand:
		echo := c.Echo
		if echo == nil {
			echo = make(map[string]interface{})
		}
		return model.Pong{Message: "pong", Echo: echo}, nil

	case model.SystemStatusCommand:
		return m.systemStatus()

	case model.TemperatureStatsCommand:
		return m.temperatureStats(c)

	case model.AnglesCommand:
		return m.angles(c)

	case model.ValvesCommand:
		return m.valves(c)
	}

	if cmd == nil {
		return nil, errors.NotValidf("пустая команда")
	}
	return nil, errors.NotValidf("тип команды %q", cmd.Type())
}

func (m *Command) systemStatus() (model.SystemStatus, error) {
	status := model.SystemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(m.started) / time.Second),
		LastRuns:      make([]model.IngestRun, 0),
	}
	if m.db != nil {
		runs, err := m.db.LastRuns(lastRunsLimit)
		if err != nil {
			return status, errors.Annotate(err, "ошибка чтения журнала обработок")
		}
		if runs != nil {
			status.LastRuns = runs
		}
	}
	return status, nil
}

func (m *Command) temperatureStats(c model.TemperatureStatsCommand) (*model.TemperatureStatsResult, error) {
	rgb, err := m.load(c.ImageRef)
	defer rgb.Close()
	if err != nil {
		return nil, errors.Trace(err)
	}

	matrix, err := thermal.BuildMatrix(rgb, c.TMin, c.TMax)
	if err != nil {
		if errors.Cause(err) == model.ErrInvalidRange {
			return nil, errors.NewNotValid(err, "параметры температуры")
		}
		return nil, errors.Trace(err)
	}

	box, fallback, err := m.roi.Resolve(rgb, c.UseDefaultIfNone)
	if err != nil {
		return nil, errors.Trace(err)
	}

	stats, err := thermal.StatsFromRegion(matrix, box)
	if err != nil {
		if errors.Cause(err) == model.ErrEmptyRegion {
			return nil, errors.NewNotValid(err, "область интереса")
		}
		return nil, errors.Trace(err)
	}

	result := model.TemperatureStatsResult{
		Source:       c.Source(),
		TMinUsed:     c.TMin,
		TMaxUsed:     c.TMax,
		RoiBbox:      box.Slice(),
		FallbackUsed: fallback,
		Stats:        stats,
	}
	if c.ImageID != "" {
		id := c.ImageID
		result.ImageID = &id
	}
	m.log.Debugf("статистика %s: %+v, область %v (центральная: %v)", c.Source(), stats, box.Slice(), fallback)
	return &result, nil
}

func (m *Command) angles(c model.AnglesCommand) (*model.AnglesResult, error) {
	rgb, err := m.load(c.ImageRef)
	defer rgb.Close()
	if err != nil {
		return nil, errors.Trace(err)
	}

	angles, err := m.valve.Angles(rgb)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if angles == nil {
		angles = make([]model.Angle, 0)
	}

	result := model.AnglesResult{
		Detections: angles,
		Count:      len(angles),
	}

	overlay := m.returnOverlay
	if c.ReturnOverlay != nil {
		overlay = *c.ReturnOverlay
	}
	if overlay {
		encoded, err := m.valve.Overlay(rgb, angles)
		if err != nil {
			return nil, errors.Trace(err)
		}
		result.OverlayBase64 = &encoded
	}
	return &result, nil
}

func (m *Command) valves(c model.ValvesCommand) (*model.ValvesResult, error) {
	rgb, err := m.load(c.ImageRef)
	defer rgb.Close()
	if err != nil {
		return nil, errors.Trace(err)
	}

	valves, err := m.valve.Valves(rgb)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if valves == nil {
		valves = make([]float64, 0)
	}
	return &model.ValvesResult{Valves: valves, Count: len(valves)}, nil
}

// Изображение RGB по ссылке: из кэша по image_id или из переданного base64
func (m *Command) load(ref model.ImageRef) (gocv.Mat, error) {
	encoded := ref.ImageBase64
	if ref.ImageID != "" {
		if m.images == nil {
			return gocv.NewMat(), errors.NotFoundf("изображение %q", ref.ImageID)
		}
		cached, ok := m.images.Get(ref.ImageID)
		if !ok {
			return gocv.NewMat(), errors.NotFoundf("изображение %q", ref.ImageID)
		}
		encoded = cached
	}

	rgb, err := imaging.Decode(encoded)
	if err != nil {
		return rgb, errors.NewNotValid(err, "изображение")
	}
	return rgb, nil
}
