package model

import (
	"fmt"
	"strings"
	"time"
)

// Side сторона установки (печи), к которой привязаны изображения
type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

// IsValid сторона входит в список допустимых
func (m Side) IsValid() bool {
	return m == SideLeft || m == SideRight
}

// InboundRequest входящий запрос на обработку изображений за дату и сторону
type InboundRequest struct {
	// Дата съёмки в формате ISO8601 с обязательной временной зоной
	Date time.Time `json:"Date" validate:"required"`
	// Сторона LEFT или RIGHT
	Side Side `json:"Side" conform:"trim,upper" validate:"required,side"`
	// Метка оборудования. Если не задана, берётся из конфигурации
	Equipment string `json:"Equipment,omitempty" conform:"trim"`
}

// SourceImage изображение, полученное от источника
type SourceImage struct {
	Side      string `json:"Side"`
	Port      int    `json:"Port"`
	Section   int    `json:"Section"`
	IsThermal bool   `json:"IsThermal"`
	Name      string `json:"Name"`
	// Изображение в base64 (может быть с префиксом data URI)
	Base64String string `json:"Base64String"`
}

// Key естественный ключ изображения в пределах коллекции: SIDE/port/section/name
func (m SourceImage) Key() string {
	return ImageKey(m.Side, m.Port, m.Section, m.Name)
}

// ImageKey формирует ключ изображения по его идентифицирующим полям
func ImageKey(side string, port, section int, name string) string {
	return fmt.Sprintf("%s/%d/%d/%s", strings.ToUpper(strings.TrimSpace(side)), port, section, strings.TrimSpace(name))
}

// SourceCollection набор изображений одной пары (Side, Date)
type SourceCollection struct {
	Side   string        `json:"Side"`
	Date   time.Time     `json:"Date"`
	Images []SourceImage `json:"Images"`
}
