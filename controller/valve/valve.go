package valve

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/kirsrus/termovisor/controller"
	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/imaging"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	maxValves = 3
	// Уверенность экземпляра, если детектор её не вернул
	defaultConfidence = 1.0
)

// Цвета разметки
var (
	colorHead  = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	colorTail  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorLine  = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorLabel = color.RGBA{R: 255, G: 255, B: 0, A: 0}
)

// Valve углы стрелок и проценты открытия задвижек по детектору ключевых точек.
// Имплементирует интерфейс ValveCtl. Инициализируется через NewValve
type Valve struct {
	ctx      context.Context
	log      *logrus.Entry
	detector service.KeypointDetector
}

// ConfigValve конфигурация конструктора NewValve
type ConfigValve struct {
	Log *logrus.Logger
}

// NewValve конструктор Valve
func NewValve(ctx context.Context, detector service.KeypointDetector, config *ConfigValve) (controller.ValveCtl, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if detector == nil {
		return nil, errors.New("не передан детектор ключевых точек")
	}

	valve := Valve{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "valve",
			"scope":  "controller",
		}),
		detector: detector,
	}
	return &valve, nil
}

// Angles углы стрелок на кадре rgb
func (m *Valve) Angles(rgb gocv.Mat) ([]model.Angle, error) {
	instances, err := m.detect(rgb)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return AnglesFromKeypoints(instances), nil
}

// Valves проценты открытия задвижек на кадре rgb
func (m *Valve) Valves(rgb gocv.Mat) ([]float64, error) {
	instances, err := m.detect(rgb)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ValvesFromKeypoints(instances), nil
}

// Overlay рисует на копии кадра голову, хвост, линию и подпись угла каждой стрелки
func (m *Valve) Overlay(rgb gocv.Mat, angles []model.Angle) (string, error) {
	if rgb.Empty() {
		return "", errors.Annotate(model.ErrEncode, "пустой кадр")
	}
	out := imaging.ToBGR(rgb)
	defer out.Close()

	for _, a := range angles {
		head := image.Pt(int(a.Head[0]), int(a.Head[1]))
		tail := image.Pt(int(a.Tail[0]), int(a.Tail[1]))
		gocv.Circle(&out, head, 5, colorHead, -1)
		gocv.Circle(&out, tail, 5, colorTail, -1)
		gocv.Line(&out, head, tail, colorLine, 2)

		mid := image.Pt((head.X+tail.X)/2, (head.Y+tail.Y)/2)
		gocv.PutText(&out, fmt.Sprintf("%.2fG", a.AngleDeg), mid, gocv.FontHersheySimplex, 0.9, colorLabel, 2)
	}

	encoded, err := imaging.Encode(out)
	if err != nil {
		return "", errors.Trace(err)
	}
	return encoded, nil
}

func (m *Valve) detect(rgb gocv.Mat) ([]model.KeypointInstance, error) {
	if rgb.Empty() {
		return nil, errors.Annotate(model.ErrDecode, "пустой кадр")
	}
	bgr := imaging.ToBGR(rgb)
	defer bgr.Close()

	instances, err := m.detector.DetectKeypoints(bgr)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка детектора ключевых точек")
	}
	m.log.Debugf("экземпляров ключевых точек: %d", len(instances))
	return instances, nil
}

// AnglesFromKeypoints угол каждой пары (голова, хвост). Экземпляры с другой формой точек
// пропускаются, индекс сохраняет позицию экземпляра в ответе детектора
func AnglesFromKeypoints(instances []model.KeypointInstance) []model.Angle {
	res := make([]model.Angle, 0, len(instances))
	for idx, inst := range instances {
		head, tail, ok := headTail(inst.Points)
		if !ok {
			continue
		}
		res = append(res, AngleFromPair(idx, head, tail))
	}
	return res
}

// AngleFromPair угол вектора head->tail
func AngleFromPair(index int, head, tail [2]float64) model.Angle {
	dx := tail[0] - head[0]
	dy := tail[1] - head[1]
	rad := math.Atan2(dy, dx)
	return model.Angle{
		Index:     index,
		AngleDeg:  math.Abs(rad * 180 / math.Pi),
		Head:      head,
		Tail:      tail,
		LengthPx:  math.Hypot(dx, dy),
		Radians:   rad,
		Direction: Quadrant(dx, dy),
	}
}

// Quadrant четверть направления вектора в координатах изображения (ось y вниз)
func Quadrant(dx, dy float64) string {
	switch {
	case dx >= 0 && dy < 0:
		return "Q1"
	case dx < 0 && dy < 0:
		return "Q2"
	case dx < 0 && dy >= 0:
		return "Q3"
	}
	return "Q4"
}

// Percentage процент открытия по углу: 100*cos²(угол), 0° и 180° дают 100, 90° дают 0
func Percentage(angleDeg float64) float64 {
	c := math.Cos(angleDeg * math.Pi / 180)
	p := 100 * c * c
	return math.Max(0, math.Min(100, p))
}

// ValvesFromKeypoints проценты открытия не более чем трёх задвижек, по убыванию уверенности
// детектора. При равной уверенности сохраняется исходный порядок
func ValvesFromKeypoints(instances []model.KeypointInstance) []float64 {
	type ranked struct {
		confidence float64
		percentage float64
	}
	items := make([]ranked, 0, len(instances))
	for _, inst := range instances {
		head, tail, ok := headTail(inst.Points)
		if !ok {
			continue
		}
		conf := defaultConfidence
		if inst.Confidence != nil && !math.IsNaN(*inst.Confidence) {
			conf = *inst.Confidence
		}
		angle := AngleFromPair(0, head, tail)
		items = append(items, ranked{confidence: conf, percentage: Percentage(angle.AngleDeg)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].confidence > items[j].confidence
	})

	res := make([]float64, 0, maxValves)
	for i := 0; i < len(items) && i < maxValves; i++ {
		res = append(res, items[i].percentage)
	}
	return res
}

// Голова и хвост экземпляра: ровно две точки [x, y(, v)] или одна плоская [x1, y1, x2, y2]
func headTail(points [][]float64) ([2]float64, [2]float64, bool) {
	var head, tail [2]float64
	switch {
	case len(points) == 2 && len(points[0]) >= 2 && len(points[1]) >= 2:
		head = [2]float64{points[0][0], points[0][1]}
		tail = [2]float64{points[1][0], points[1][1]}
	case len(points) == 1 && len(points[0]) == 4:
		head = [2]float64{points[0][0], points[0][1]}
		tail = [2]float64{points[0][2], points[0][3]}
	default:
		return head, tail, false
	}
	for _, v := range []float64{head[0], head[1], tail[0], tail[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return head, tail, false
		}
	}
	return head, tail, true
}
