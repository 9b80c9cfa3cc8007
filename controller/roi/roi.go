package roi

import (
	"context"
	"math"

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
	defaultClassName   = "extraction_roi"
	defaultInferWidth  = 224
	defaultInferHeight = 224

	// Границы центральной области в долях кадра
	centerLo = 0.35
	centerHi = 0.65
)

// Roi определение области интереса по детектору областей. Имплементирует интерфейс RoiCtl.
// Инициализируется через NewRoi
type Roi struct {
	ctx       context.Context
	log       *logrus.Entry
	detector  service.RegionDetector
	className string
	inferSize model.Size
}

// ConfigRoi конфигурация конструктора NewRoi
type ConfigRoi struct {
	Log *logrus.Logger
	// Класс, по полигонам которого строится область
	ClassName   string
	InferWidth  int
	InferHeight int
}

// NewRoi конструктор Roi
func NewRoi(ctx context.Context, detector service.RegionDetector, config *ConfigRoi) (controller.RoiCtl, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if detector == nil {
		return nil, errors.New("не передан детектор областей")
	}

	roi := Roi{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "roi",
			"scope":  "controller",
		}),
		detector:  detector,
		className: defaultClassName,
		inferSize: model.Size{W: defaultInferWidth, H: defaultInferHeight},
	}
	if config.ClassName != "" {
		roi.className = config.ClassName
	}
	if config.InferWidth > 0 {
		roi.inferSize.W = config.InferWidth
	}
	if config.InferHeight > 0 {
		roi.inferSize.H = config.InferHeight
	}

	return &roi, nil
}

// Detect область интереса в координатах кадра rgb
func (m *Roi) Detect(rgb gocv.Mat) (*model.Box, error) {
	if rgb.Empty() {
		return nil, errors.Annotate(model.ErrDecode, "пустой кадр")
	}

	bgr := imaging.ToBGR(rgb)
	defer bgr.Close()
	resized := imaging.Resize(bgr, m.inferSize)
	defer resized.Close()

	polygons, err := m.detector.DetectRegions(resized)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка детектора областей")
	}

	box := BoxFromPolygons(polygons, m.className, m.inferSize, imaging.SizeOf(rgb))
	if box == nil {
		m.log.Debugf("область %s не найдена среди %d полигонов", m.className, len(polygons))
	}
	return box, nil
}

// Resolve область интереса с необязательным переходом на центральную область
func (m *Roi) Resolve(rgb gocv.Mat, useFallback bool) (model.Box, bool, error) {
	box, err := m.Detect(rgb)
	if err != nil {
		return model.Box{}, false, errors.Trace(err)
	}
	if box != nil {
		return *box, false, nil
	}
	if !useFallback {
		return model.Box{}, false, errors.NotFoundf("область %q", m.className)
	}
	return DefaultCenterBox(rgb.Cols(), rgb.Rows()), true, nil
}

// BoxFromPolygons объединяет точки полигонов класса className (координаты кадра детектора
// размера infer), строит охватывающий прямоугольник и переводит его в кадр frame.
// Верхние границы не включаются. nil, если полигонов класса нет или область вырождена
func BoxFromPolygons(polygons []model.Polygon, className string, infer, frame model.Size) *model.Box {
	if infer.W <= 0 || infer.H <= 0 || frame.W <= 0 || frame.H <= 0 {
		return nil
	}

	sx := float64(frame.W) / float64(infer.W)
	sy := float64(frame.H) / float64(infer.H)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false
	for _, p := range polygons {
		if p.Class != className {
			continue
		}
		for _, pt := range p.Points {
			x := math.RoundToEven(pt[0]) * sx
			y := math.RoundToEven(pt[1]) * sy
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			found = true
		}
	}
	if !found {
		return nil
	}

	box := model.Box{
		XLo: clamp(int(math.Floor(minX)), 0, maxInt(frame.W-1, 0)),
		YLo: clamp(int(math.Floor(minY)), 0, maxInt(frame.H-1, 0)),
		XHi: clamp(int(math.Ceil(maxX)), 1, frame.W),
		YHi: clamp(int(math.Ceil(maxY)), 1, frame.H),
	}
	if box.Empty() {
		return nil
	}
	return &box
}

// DefaultCenterBox центральная область 35%..65% по каждой оси, не меньше 1x1
func DefaultCenterBox(width, height int) model.Box {
	xLo, xHi := centerRange(width)
	yLo, yHi := centerRange(height)
	return model.Box{XLo: xLo, YLo: yLo, XHi: xHi, YHi: yHi}
}

func centerRange(n int) (int, int) {
	lo := int(float64(n) * centerLo)
	hi := int(float64(n) * centerHi)
	lo = clamp(lo, 0, maxInt(n-1, 0))
	hi = clamp(hi, 1, maxInt(n, 1))
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
