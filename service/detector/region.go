package detector

import (
	"context"
	"image"
	"strconv"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	defaultConfidence = 0.25
	defaultIoU        = 0.45
)

// Region детектор областей по ONNX модели сегментации в формате YOLO (боксы и прототипы масок).
// Имплементирует интерфейс RegionDetector. Инициализируется через NewRegion
type Region struct {
	ctx        context.Context
	log        *logrus.Entry
	net        *onnxNet
	classNames []string
	confidence float64
	iou        float64
}

// ConfigRegion конфигурация конструктора NewRegion
type ConfigRegion struct {
	Log       *logrus.Logger
	ModelPath string
	// Имена классов модели по порядку индексов
	ClassNames []string
	Confidence float64
	IoU        float64
}

// NewRegion конструктор Region. Модель загружается при первом вызове DetectRegions
func NewRegion(ctx context.Context, config *ConfigRegion) (*Region, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.ModelPath == "" {
		return nil, errors.New("не указан путь к модели областей")
	}

	log := config.Log.WithFields(map[string]interface{}{
		"module": "region",
		"scope":  "detector",
	})
	region := Region{
		ctx:        ctx,
		log:        log,
		net:        newOnnxNet(log, config.ModelPath),
		classNames: config.ClassNames,
		confidence: defaultConfidence,
		iou:        defaultIoU,
	}
	if config.Confidence != 0 {
		region.confidence = config.Confidence
	}
	if config.IoU != 0 {
		region.iou = config.IoU
	}

	return &region, nil
}

var _ service.RegionDetector = (*Region)(nil)

// DetectRegions полигоны найденных областей в координатах переданного кадра
func (m *Region) DetectRegions(bgr gocv.Mat) ([]model.Polygon, error) {
	if bgr.Empty() {
		return nil, errors.New("пустой кадр")
	}
	size := image.Pt(bgr.Cols(), bgr.Rows())
	outs, err := m.net.forward(bgr, size)
	if err != nil {
		return nil, errors.Trace(err)
	}
	polygons := decodeRegions(outs, m.classNames, m.confidence, m.iou, size)
	m.log.Debugf("найдено областей: %d", len(polygons))
	return polygons, nil
}

// Close освобождает сеть
func (m *Region) Close() error {
	return m.net.close()
}

// Разбирает выходы сегментационной модели. Первый двумерный выход содержит кандидатов,
// трёхмерный (если есть) прототипы масок
func decodeRegions(outs []tensor, classNames []string, confidence, iouThreshold float64, size image.Point) []model.Polygon {
	var pred, protos *tensor
	for i := range outs {
		switch len(outs[i].shape()) {
		case 2:
			if pred == nil {
				pred = &outs[i]
			}
		case 3:
			if protos == nil {
				protos = &outs[i]
			}
		}
	}
	if pred == nil {
		return []model.Polygon{}
	}

	nm := 0
	if protos != nil {
		nm = protoCount(*protos)
	}
	// Число классов из конфигурации, иначе по меньшей оси выхода
	nc := len(classNames)
	if nc == 0 {
		shape := pred.shape()
		channels := shape[0]
		if shape[1] < channels {
			channels = shape[1]
		}
		nc = channels - 4 - nm
	}

	cands := nms(decodeCandidates(*pred, nc, nm, confidence), iouThreshold)

	res := make([]model.Polygon, 0, len(cands))
	for _, c := range cands {
		name := strconv.Itoa(c.class)
		if c.class < len(classNames) {
			name = classNames[c.class]
		}

		var points [][2]float64
		if protos != nil && nm > 0 {
			dims := protoDims(*protos)
			scaleX := float64(dims[2]) / float64(size.X)
			scaleY := float64(dims[1]) / float64(size.Y)
			mask, mw, mh := maskFromProtos(c.extra, *protos, c.box, scaleX, scaleY)
			points = maskPolygon(mask, mw, mh, 1/scaleX, 1/scaleY)
		}
		if len(points) == 0 {
			points = boxPolygon(c.box, size)
		}

		res = append(res, model.Polygon{
			Class:      name,
			Confidence: c.confidence,
			Points:     points,
		})
	}
	return res
}

func protoDims(t tensor) []int {
	dims := t.dims
	for len(dims) > 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	return dims
}

func protoCount(t tensor) int {
	dims := protoDims(t)
	if len(dims) != 3 {
		return 0
	}
	return dims[0]
}

// Контур наибольшей связной области маски, переведённый в координаты входа сети
func maskPolygon(mask []uint8, mw, mh int, scaleX, scaleY float64) [][2]float64 {
	if len(mask) == 0 || mw == 0 || mh == 0 {
		return nil
	}
	mat, err := gocv.NewMatFromBytes(mh, mw, gocv.MatTypeCV8U, mask)
	if err != nil {
		return nil
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil
	}

	best, bestArea := 0, -1.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}

	pts := contours.At(best).ToPoints()
	res := make([][2]float64, 0, len(pts))
	for _, p := range pts {
		res = append(res, [2]float64{float64(p.X) * scaleX, float64(p.Y) * scaleY})
	}
	return res
}

// Углы прямоугольника кандидата в пределах кадра
func boxPolygon(box [4]float64, size image.Point) [][2]float64 {
	clamp := func(v float64, hi int) float64 {
		if v < 0 {
			return 0
		}
		if v > float64(hi) {
			return float64(hi)
		}
		return v
	}
	x1, y1 := clamp(box[0], size.X), clamp(box[1], size.Y)
	x2, y2 := clamp(box[2], size.X), clamp(box[3], size.Y)
	return [][2]float64{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}
