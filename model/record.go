package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Форматы метки времени для приёмника: UTC с суффиксом Z. Дробная часть
// либо отсутствует, либо всегда из шести знаков (микросекунды)
const (
	isoLayout      = "2006-01-02T15:04:05Z07:00"
	isoLayoutMicro = "2006-01-02T15:04:05.000000Z07:00"
)

// DefaultSampleField имя поля с вектором температур в SinkRecord по умолчанию
const DefaultSampleField = "Temperature"

// RecordKind тип записи для приёмника
type RecordKind string

const (
	KindSink        RecordKind = "sink"
	KindTemperature RecordKind = "temperature"
	KindValve       RecordKind = "valve"
)

// Record запись, отправляемая в приёмник пакетами
type Record interface {
	Kind() RecordKind
}

// IsoZ форматирует время в ISO8601 UTC с суффиксом Z
func IsoZ(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoLayoutMicro)
}

// SinkRecord запись по одному изображению с вектором температур. Имя поля с вектором
// задаётся через FieldName, поэтому JSON формируется вручную с сохранением порядка полей
type SinkRecord struct {
	Timestamp string
	Equipment string
	Side      string
	Port      int
	Section   string
	FieldName string
	Samples   []float64
}

// Kind тип записи
func (m SinkRecord) Kind() RecordKind { return KindSink }

// MarshalJSON сериализация с фиксированным порядком полей. NaN и Inf приводят к ошибке
func (m SinkRecord) MarshalJSON() ([]byte, error) {
	field := m.FieldName
	if field == "" {
		field = DefaultSampleField
	}
	samples := m.Samples
	if samples == nil {
		samples = make([]float64, 0)
	}
	fields := []struct {
		key   string
		value interface{}
	}{
		{"Timestamp", m.Timestamp},
		{"Equipment", m.Equipment},
		{"Side", m.Side},
		{"Port", m.Port},
		{"Section", m.Section},
		{field, samples},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TemperatureRecord одна точка температурного вектора (плоский режим)
type TemperatureRecord struct {
	Timestamp   string  `json:"Timestamp"`
	Side        string  `json:"Side"`
	Port        int     `json:"Port"`
	Section     int     `json:"Section"`
	Temperature float64 `json:"Temperature"`
}

// Kind тип записи
func (m TemperatureRecord) Kind() RecordKind { return KindTemperature }

// ValveRecord проценты открытия задвижек по одному нетепловому изображению.
// Отсутствующее значение сериализуется как null
type ValveRecord struct {
	Timestamp string   `json:"Timestamp"`
	Side      string   `json:"Side"`
	Port      int      `json:"Port"`
	Section   int      `json:"Section"`
	Valve1    *float64 `json:"Valve_1"`
	Valve2    *float64 `json:"Valve_2"`
	Valve3    *float64 `json:"Valve_3"`
}

// Kind тип записи
func (m ValveRecord) Kind() RecordKind { return KindValve }

// SetValves заполняет Valve_1..Valve_3 по порядку из values (не более трёх)
func (m *ValveRecord) SetValves(values []float64) {
	slots := []**float64{&m.Valve1, &m.Valve2, &m.Valve3}
	for i := range slots {
		*slots[i] = nil
		if i < len(values) {
			v := values[i]
			*slots[i] = &v
		}
	}
}
