package model

import "github.com/juju/errors"

// Классы ошибок конвейера. Сравниваются через errors.Cause
var (
	// Некорректные данные изображения при декодировании
	ErrDecode = errors.New("ошибка декодирования изображения")
	// Не удалось закодировать изображение в PNG
	ErrEncode = errors.New("ошибка кодирования изображения")
	// Недопустимый температурный диапазон
	ErrInvalidRange = errors.New("недопустимый диапазон температур")
	// Область интереса не имеет площади
	ErrEmptyRegion = errors.New("пустая область интереса")
	// В пакете есть NaN или Inf
	ErrSerialization = errors.New("ошибка сериализации пакета")
	// Приёмник отклонил пакет
	ErrDelivery = errors.New("ошибка доставки в приёмник")
)
