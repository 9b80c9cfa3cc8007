package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/kirsrus/termovisor/pkg/validator"

	"github.com/juju/errors"
)

// Температурный диапазон команды GET_TEMPERATURE_STATS по умолчанию
const (
	DefaultCommandTempMin = 98.0
	DefaultCommandTempMax = 550.0
)

// CommandType тип команды
type CommandType string

const (
	CommandPing             CommandType = "PING"
	CommandSystemStatus     CommandType = "GET_SYSTEM_STATUS"
	CommandTemperatureStats CommandType = "GET_TEMPERATURE_STATS"
	CommandAngles           CommandType = "GET_ANGLES"
	CommandValves           CommandType = "GET_VALVES"
)

// CommandRequest конверт входящей команды
type CommandRequest struct {
	Type          CommandType     `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID *string         `json:"correlation_id"`
}

// CommandResponse конверт ответа на команду
type CommandResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data"`
	Error         *string     `json:"error"`
	CorrelationID *string     `json:"correlation_id"`
}

// Command разобранная и проверенная команда. Реализуется только типами этого пакета
type Command interface {
	Type() CommandType
	sealed()
}

// ImageRef ссылка на изображение: идентификатор из кэша последней выгрузки или само изображение
type ImageRef struct {
	ImageID     string `json:"image_id"`
	ImageBase64 string `json:"image_base64" validate:"omitempty,datauri"`
}

// Source откуда взято изображение
func (m ImageRef) Source() string {
	if m.ImageID != "" {
		return "image_id"
	}
	return "image_base64"
}

func (m *ImageRef) validate() error {
	m.ImageID = strings.TrimSpace(m.ImageID)
	m.ImageBase64 = strings.TrimSpace(m.ImageBase64)
	if m.ImageID == "" && m.ImageBase64 == "" {
		return errors.NotValidf("не передано ни 'image_id', ни 'image_base64'")
	}
	if err := validator.Get().Validate(m); err != nil {
		return errors.NotValidf("'image_base64': %v", err)
	}
	return nil
}

// PingCommand проверка доступности
type PingCommand struct {
	Echo map[string]interface{}
}

// SystemStatusCommand запрос состояния сервиса
type SystemStatusCommand struct{}

// TemperatureStatsCommand статистика температур в области интереса одного изображения
type TemperatureStatsCommand struct {
	ImageRef
	TMin float64
	TMax float64
	// Использовать центральную область, если детектор ничего не нашёл
	UseDefaultIfNone bool
}

// AnglesCommand углы стрелок на одном изображении
type AnglesCommand struct {
	ImageRef
	// nil - брать значение из конфигурации
	ReturnOverlay *bool
}

// ValvesCommand проценты открытия задвижек на одном изображении
type ValvesCommand struct {
	ImageRef
}

func (PingCommand) Type() CommandType             { return CommandPing }
func (SystemStatusCommand) Type() CommandType     { return CommandSystemStatus }
func (TemperatureStatsCommand) Type() CommandType { return CommandTemperatureStats }
func (AnglesCommand) Type() CommandType           { return CommandAngles }
func (ValvesCommand) Type() CommandType           { return CommandValves }

func (PingCommand) sealed()             {}
func (SystemStatusCommand) sealed()     {}
func (TemperatureStatsCommand) sealed() {}
func (AnglesCommand) sealed()           {}
func (ValvesCommand) sealed()           {}

// ParseCommand разбирает полезную нагрузку по типу команды и проверяет её.
// Ошибки проверки возвращаются как errors.NotValid
func ParseCommand(req CommandRequest) (Command, error) {
	payload := req.Payload
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = json.RawMessage("{}")
	}

	switch req.Type {
	case CommandPing:
		echo := make(map[string]interface{})
		if err := json.Unmarshal(payload, &echo); err != nil {
			return nil, errors.NotValidf("payload команды %s: %v", req.Type, err)
		}
		return PingCommand{Echo: echo}, nil

	case CommandSystemStatus:
		return SystemStatusCommand{}, nil

	case CommandTemperatureStats:
		var raw struct {
			ImageRef
			TMin             *float64 `json:"t_min"`
			TMax             *float64 `json:"t_max"`
			UseDefaultIfNone *bool    `json:"use_default_if_none"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, errors.NotValidf("payload команды %s: %v", req.Type, err)
		}
		if err := raw.ImageRef.validate(); err != nil {
			return nil, errors.Trace(err)
		}
		cmd := TemperatureStatsCommand{
			ImageRef:         raw.ImageRef,
			TMin:             DefaultCommandTempMin,
			TMax:             DefaultCommandTempMax,
			UseDefaultIfNone: true,
		}
		if raw.TMin != nil {
			cmd.TMin = *raw.TMin
		}
		if raw.TMax != nil {
			cmd.TMax = *raw.TMax
		}
		if raw.UseDefaultIfNone != nil {
			cmd.UseDefaultIfNone = *raw.UseDefaultIfNone
		}
		if err := ValidateRange(cmd.TMin, cmd.TMax); err != nil {
			return nil, errors.NotValidf("параметры температуры t_min=%v t_max=%v", cmd.TMin, cmd.TMax)
		}
		return cmd, nil

	case CommandAngles:
		var raw struct {
			ImageRef
			ReturnOverlay *bool `json:"return_overlay"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, errors.NotValidf("payload команды %s: %v", req.Type, err)
		}
		if err := raw.ImageRef.validate(); err != nil {
			return nil, errors.Trace(err)
		}
		return AnglesCommand{ImageRef: raw.ImageRef, ReturnOverlay: raw.ReturnOverlay}, nil

	case CommandValves:
		var raw ValvesCommand
		if err := json.Unmarshal(payload, &raw.ImageRef); err != nil {
			return nil, errors.NotValidf("payload команды %s: %v", req.Type, err)
		}
		if err := raw.ImageRef.validate(); err != nil {
			return nil, errors.Trace(err)
		}
		return raw, nil
	}

	return nil, errors.NotValidf("тип команды %q", req.Type)
}

// ValidateRange проверяет, что диапазон температур конечен и tMax > tMin
func ValidateRange(tMin, tMax float64) error {
	if math.IsNaN(tMin) || math.IsInf(tMin, 0) || math.IsNaN(tMax) || math.IsInf(tMax, 0) || tMax <= tMin {
		return errors.Annotatef(ErrInvalidRange, "t_min=%v t_max=%v", tMin, tMax)
	}
	return nil
}

// TemperatureStatsResult ответ на GET_TEMPERATURE_STATS
type TemperatureStatsResult struct {
	Source       string  `json:"source"`
	ImageID      *string `json:"image_id"`
	TMinUsed     float64 `json:"t_min_used"`
	TMaxUsed     float64 `json:"t_max_used"`
	RoiBbox      []int   `json:"roi_bbox"`
	FallbackUsed bool    `json:"fallback_used"`
	Stats        Stats   `json:"stats"`
}

// AnglesResult ответ на GET_ANGLES
type AnglesResult struct {
	Detections    []Angle `json:"detections"`
	Count         int     `json:"count"`
	OverlayBase64 *string `json:"overlay_base64"`
}

// ValvesResult ответ на GET_VALVES
type ValvesResult struct {
	Valves []float64 `json:"valves"`
	Count  int       `json:"count"`
}

// SystemStatus ответ на GET_SYSTEM_STATUS
type SystemStatus struct {
	Status        string      `json:"status"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	LastRuns      []IngestRun `json:"last_runs"`
}

// Pong ответ на PING
type Pong struct {
	Message string                 `json:"message"`
	Echo    map[string]interface{} `json:"echo"`
}
