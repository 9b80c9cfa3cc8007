package detector

import (
	"context"
	"image"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/logger"
	"github.com/kirsrus/termovisor/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	defaultInferSize    = 640
	defaultKeypoints    = 2 // голова и хвост стрелки
	defaultKeypointDims = 3 // x, y, видимость
	defaultPoseClasses  = 1
)

// Keypoint детектор ключевых точек по ONNX модели позы в формате YOLO.
// Имплементирует интерфейс KeypointDetector. Инициализируется через NewKeypoint
type Keypoint struct {
	ctx          context.Context
	log          *logrus.Entry
	net          *onnxNet
	inferSize    int
	classes      int
	keypoints    int
	keypointDims int
	confidence   float64
	iou          float64
}

// ConfigKeypoint конфигурация конструктора NewKeypoint
type ConfigKeypoint struct {
	Log          *logrus.Logger
	ModelPath    string
	InferSize    int
	Classes      int
	Keypoints    int
	KeypointDims int
	Confidence   float64
	IoU          float64
}

// NewKeypoint конструктор Keypoint. Модель загружается при первом вызове DetectKeypoints
func NewKeypoint(ctx context.Context, config *ConfigKeypoint) (*Keypoint, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	if config.ModelPath == "" {
		return nil, errors.New("не указан путь к модели ключевых точек")
	}

	log := config.Log.WithFields(map[string]interface{}{
		"module": "keypoint",
		"scope":  "detector",
	})
	keypoint := Keypoint{
		ctx:          ctx,
		log:          log,
		net:          newOnnxNet(log, config.ModelPath),
		inferSize:    defaultInferSize,
		classes:      defaultPoseClasses,
		keypoints:    defaultKeypoints,
		keypointDims: defaultKeypointDims,
		confidence:   defaultConfidence,
		iou:          defaultIoU,
	}
	if config.InferSize != 0 {
		keypoint.inferSize = config.InferSize
	}
	if config.Classes != 0 {
		keypoint.classes = config.Classes
	}
	if config.Keypoints != 0 {
		keypoint.keypoints = config.Keypoints
	}
	if config.KeypointDims != 0 {
		keypoint.keypointDims = config.KeypointDims
	}
	if config.Confidence != 0 {
		keypoint.confidence = config.Confidence
	}
	if config.IoU != 0 {
		keypoint.iou = config.IoU
	}

	return &keypoint, nil
}

var _ service.KeypointDetector = (*Keypoint)(nil)

// DetectKeypoints экземпляры с ключевыми точками в координатах переданного кадра
func (m *Keypoint) DetectKeypoints(bgr gocv.Mat) ([]model.KeypointInstance, error) {
	if bgr.Empty() {
		return nil, errors.New("пустой кадр")
	}
	outs, err := m.net.forward(bgr, image.Pt(m.inferSize, m.inferSize))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(outs) == 0 {
		return []model.KeypointInstance{}, nil
	}

	scaleX := float64(bgr.Cols()) / float64(m.inferSize)
	scaleY := float64(bgr.Rows()) / float64(m.inferSize)
	instances := decodeKeypoints(outs[0], m.classes, m.keypoints, m.keypointDims, m.confidence, m.iou, scaleX, scaleY)
	m.log.Debugf("найдено экземпляров: %d", len(instances))
	return instances, nil
}

// Close освобождает сеть
func (m *Keypoint) Close() error {
	return m.net.close()
}

// Разбирает выход модели позы и переводит точки в координаты исходного кадра
func decodeKeypoints(pred tensor, classes, keypoints, dims int, confidence, iouThreshold, scaleX, scaleY float64) []model.KeypointInstance {
	cands := nms(decodeCandidates(pred, classes, keypoints*dims, confidence), iouThreshold)

	res := make([]model.KeypointInstance, 0, len(cands))
	for _, c := range cands {
		conf := c.confidence
		inst := model.KeypointInstance{
			Confidence: &conf,
			Points:     make([][]float64, 0, keypoints),
		}
		for k := 0; k < keypoints; k++ {
			raw := c.extra[k*dims : (k+1)*dims]
			point := make([]float64, dims)
			copy(point, raw)
			point[0] *= scaleX
			if dims > 1 {
				point[1] *= scaleY
			}
			inst.Points = append(inst.Points, point)
		}
		res = append(res, inst)
	}
	return res
}
