package valve

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
	"github.com/kirsrus/termovisor/pkg/imaging"
)

type fakeDetector struct {
	instances []model.KeypointInstance
	err       error
}

func (f *fakeDetector) DetectKeypoints(bgr gocv.Mat) ([]model.KeypointInstance, error) {
	return f.instances, f.err
}

func conf(v float64) *float64 { return &v }

// Экземпляр со стрелкой длины 10 под углом deg
func arrow(deg float64, confidence *float64) model.KeypointInstance {
	rad := deg * math.Pi / 180
	return model.KeypointInstance{
		Confidence: confidence,
		Points:     [][]float64{{50, 50, 1}, {50 + 10*math.Cos(rad), 50 + 10*math.Sin(rad), 1}},
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		angle float64
		want  float64
	}{
		{name: "0°", angle: 0, want: 100},
		{name: "180°", angle: 180, want: 100},
		{name: "90°", angle: 90, want: 0},
		{name: "45°", angle: 45, want: 50},
		{name: "60°", angle: 60, want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentage(tt.angle), 1e-9)
		})
	}

	for deg := -720.0; deg <= 720; deg += 7.5 {
		p := Percentage(deg)
		assert.True(t, p >= 0 && p <= 100, "%v -> %v", deg, p)
	}
}

func TestAngleFromPair(t *testing.T) {
	tests := []struct {
		name    string
		head    [2]float64
		tail    [2]float64
		wantDeg float64
		wantDir string
		wantLen float64
		wantRad float64
	}{
		{name: "вправо", head: [2]float64{0, 0}, tail: [2]float64{10, 0}, wantDeg: 0, wantDir: "Q4", wantLen: 10, wantRad: 0},
		{name: "вверх", head: [2]float64{0, 0}, tail: [2]float64{0, -5}, wantDeg: 90, wantDir: "Q1", wantLen: 5, wantRad: -math.Pi / 2},
		{name: "влево вверх", head: [2]float64{0, 0}, tail: [2]float64{-3, -3}, wantDeg: 135, wantDir: "Q2", wantLen: math.Sqrt(18), wantRad: -3 * math.Pi / 4},
		{name: "влево вниз", head: [2]float64{0, 0}, tail: [2]float64{-4, 3}, wantDeg: 180 - math.Atan(0.75)*180/math.Pi, wantDir: "Q3", wantLen: 5, wantRad: math.Pi - math.Atan(0.75)},
		{name: "вправо вниз", head: [2]float64{1, 1}, tail: [2]float64{4, 5}, wantDeg: math.Atan(4.0/3)*180/math.Pi, wantDir: "Q4", wantLen: 5, wantRad: math.Atan(4.0 / 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AngleFromPair(3, tt.head, tt.tail)
			assert.Equal(t, 3, a.Index)
			assert.InDelta(t, tt.wantDeg, a.AngleDeg, 1e-9)
			assert.InDelta(t, tt.wantRad, a.Radians, 1e-9)
			assert.InDelta(t, tt.wantLen, a.LengthPx, 1e-9)
			assert.Equal(t, tt.wantDir, a.Direction)
		})
	}
}

func TestAnglesFromKeypoints_Malformed(t *testing.T) {
	instances := []model.KeypointInstance{
		{Points: [][]float64{{0, 0}}},                 // одна точка
		{Points: [][]float64{{0, 0}, {10, 0}}},        // корректный
		{Points: [][]float64{{0}, {10, 0}}},           // неполная точка
		{Points: [][]float64{{0, 0, 10, 0}}},          // плоская пара
		{Points: [][]float64{{0, 0}, {1, 1}, {2, 2}}}, // три точки
		{Points: [][]float64{{math.NaN(), 0}, {1, 1}}},
	}
	angles := AnglesFromKeypoints(instances)
	require.Len(t, angles, 2)
	assert.Equal(t, 1, angles[0].Index)
	assert.Equal(t, 3, angles[1].Index)
}

func TestValvesFromKeypoints(t *testing.T) {
	tests := []struct {
		name      string
		instances []model.KeypointInstance
		want      []float64
	}{
		{name: "нет экземпляров", instances: nil, want: []float64{}},
		{
			name:      "сортировка по уверенности",
			instances: []model.KeypointInstance{arrow(90, conf(0.3)), arrow(0, conf(0.9)), arrow(45, conf(0.5))},
			want:      []float64{100, 50, 0},
		},
		{
			name:      "не более трёх",
			instances: []model.KeypointInstance{arrow(0, conf(0.1)), arrow(90, conf(0.2)), arrow(60, conf(0.3)), arrow(45, conf(0.4))},
			want:      []float64{50, 25, 0},
		},
		{
			name:      "равная уверенность сохраняет порядок",
			instances: []model.KeypointInstance{arrow(90, conf(0.5)), arrow(0, conf(0.5))},
			want:      []float64{0, 100},
		},
		{
			name:      "без уверенности считается 1.0",
			instances: []model.KeypointInstance{arrow(90, conf(0.99)), arrow(0, nil)},
			want:      []float64{100, 0},
		},
		{
			name:      "180° даёт 100",
			instances: []model.KeypointInstance{arrow(180, nil)},
			want:      []float64{100},
		},
		{
			name:      "некорректный экземпляр пропускается",
			instances: []model.KeypointInstance{{Points: [][]float64{{1, 2}}}, arrow(0, nil)},
			want:      []float64{100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValvesFromKeypoints(tt.instances)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6)
				assert.True(t, got[i] >= 0 && got[i] <= 100)
			}
		})
	}
}

func TestValve_Controller(t *testing.T) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	detector := &fakeDetector{instances: []model.KeypointInstance{arrow(0, conf(0.8)), arrow(90, conf(0.9))}}
	ctl, err := NewValve(context.Background(), detector, &ConfigValve{})
	require.NoError(t, err)

	angles, err := ctl.Angles(rgb)
	require.NoError(t, err)
	require.Len(t, angles, 2)

	valves, err := ctl.Valves(rgb)
	require.NoError(t, err)
	require.Len(t, valves, 2)
	assert.InDelta(t, 0, valves[0], 1e-6)
	assert.InDelta(t, 100, valves[1], 1e-6)

	overlay, err := ctl.Overlay(rgb, angles)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(overlay, "data:image/png;base64,"))

	// Разметка не меняет исходный кадр и декодируется обратно
	decoded, err := imaging.Decode(overlay)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Equal(t, imaging.SizeOf(rgb), imaging.SizeOf(decoded))
	assert.Equal(t, 0, gocv.CountNonZero(extractChannel(rgb)))
}

func TestValve_DetectorError(t *testing.T) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 10, 10, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	ctl, err := NewValve(context.Background(), &fakeDetector{err: errors.New("сбой")}, &ConfigValve{})
	require.NoError(t, err)
	_, err = ctl.Valves(rgb)
	assert.Error(t, err)
}

func extractChannel(rgb gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
	return gray
}
