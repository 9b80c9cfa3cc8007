package controller

import (
	"context"

	"github.com/kirsrus/termovisor/model"

	"gocv.io/x/gocv"
)

// RoiCtl определение области интереса на кадре
//go:generate mockery --dir . --name RoiCtl --output ./mocks
type RoiCtl interface {
	// Область интереса в координатах кадра RGB. nil, если целевой класс не найден
	// или область вырождена
	Detect(rgb gocv.Mat) (*model.Box, error)
	// То же, но при отсутствии области и useFallback=true возвращает центральную область.
	// Второй результат сообщает, что использована центральная область
	Resolve(rgb gocv.Mat, useFallback bool) (model.Box, bool, error)
}

// ValveCtl углы стрелок и проценты открытия задвижек
//go:generate mockery --dir . --name ValveCtl --output ./mocks
type ValveCtl interface {
	// Углы по парам ключевых точек (голова, хвост) на кадре RGB
	Angles(rgb gocv.Mat) ([]model.Angle, error)
	// Проценты открытия задвижек (не более трёх, по убыванию уверенности)
	Valves(rgb gocv.Mat) ([]float64, error)
	// Кадр с разметкой углов в виде data:image/png;base64
	Overlay(rgb gocv.Mat, angles []model.Angle) (string, error)
}

// IngestCtl обработка входящего запроса: выгрузка, обработка изображений, отправка в приёмник
//go:generate mockery --dir . --name IngestCtl --output ./mocks
type IngestCtl interface {
	Process(ctx context.Context, req model.InboundRequest) (*model.IngestResult, error)
}

// CommandCtl выполнение команд по одному изображению и служебных команд
//go:generate mockery --dir . --name CommandCtl --output ./mocks
type CommandCtl interface {
	// Выполняет проверенную команду и возвращает данные ответа
	Execute(ctx context.Context, cmd model.Command) (interface{}, error)
}
