package detector

import (
	"image"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// onnxNet сеть ONNX, загружаемая при первом обращении. Прогон сети сериализуется
type onnxNet struct {
	log  *logrus.Entry
	path string

	once    sync.Once
	loadErr error

	mu      sync.Mutex
	loaded  bool
	net     gocv.Net
	outputs []string
}

func newOnnxNet(log *logrus.Entry, path string) *onnxNet {
	return &onnxNet{log: log, path: path}
}

func (m *onnxNet) load() error {
	m.once.Do(func() {
		if _, err := os.Stat(m.path); err != nil {
			m.loadErr = errors.Annotatef(err, "файл модели не найден: %s", m.path)
			return
		}
		net := gocv.ReadNetFromONNX(m.path)
		if net.Empty() {
			m.loadErr = errors.Errorf("не удалось загрузить модель %s", m.path)
			return
		}
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)

		m.net = net
		m.loaded = true
		m.outputs = outputLayers(net)
		m.log.Infof("модель %s загружена, выходы: %v", m.path, m.outputs)
	})
	return m.loadErr
}

// Прогоняет кадр BGR через сеть. Возвращает выходы в виде плоских тензоров с размерностями
func (m *onnxNet) forward(bgr gocv.Mat, size image.Point) ([]tensor, error) {
	if err := m.load(); err != nil {
		return nil, errors.Trace(err)
	}

	blob := gocv.BlobFromImage(bgr, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	outs := m.net.ForwardLayers(m.outputs)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	res := make([]tensor, 0, len(outs))
	for i := range outs {
		data, err := outs[i].DataPtrFloat32()
		if err != nil {
			return nil, errors.Annotatef(err, "выход %d модели", i)
		}
		t := tensor{dims: outs[i].Size(), data: make([]float32, len(data))}
		copy(t.data, data)
		res = append(res, t)
	}
	return res, nil
}

func (m *onnxNet) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return nil
	}
	m.loaded = false
	return m.net.Close()
}

// Имена выходных слоёв сети
func outputLayers(net gocv.Net) []string {
	layerNames := net.GetLayerNames()
	unconnected := net.GetUnconnectedOutLayers()

	res := make([]string, 0, len(unconnected))
	for _, i := range unconnected {
		if i-1 >= 0 && i-1 < len(layerNames) {
			res = append(res, layerNames[i-1])
		}
	}
	return res
}

// tensor плоский тензор float32 с размерностями
type tensor struct {
	dims []int
	data []float32
}

// Размерности без оси пакета
func (m tensor) shape() []int {
	if len(m.dims) > 2 && m.dims[0] == 1 {
		return m.dims[1:]
	}
	return m.dims
}
