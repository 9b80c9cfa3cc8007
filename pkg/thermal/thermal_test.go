package thermal

import (
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/k0kubun/pp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
)

func TestBuildMatrix_Uniform(t *testing.T) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 10, 10, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	m, err := BuildMatrix(rgb, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Width)
	assert.Equal(t, 10, m.Height)
	require.Len(t, m.Values, 100)
	for _, v := range m.Values {
		assert.InDelta(t, 150, v, 1e-9)
	}
}

func TestBuildMatrix_InvalidRange(t *testing.T) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer rgb.Close()

	tests := []struct {
		name       string
		tMin, tMax float64
	}{
		{name: "равные границы", tMin: 100, tMax: 100},
		{name: "перевёрнутый диапазон", tMin: 200, tMax: 100},
		{name: "NaN", tMin: math.NaN(), tMax: 100},
		{name: "бесконечность", tMin: 0, tMax: math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildMatrix(rgb, tt.tMin, tt.tMax)
			require.Error(t, err)
			assert.Equal(t, model.ErrInvalidRange, errors.Cause(err))
		})
	}
}

func TestFromGray(t *testing.T) {
	tests := []struct {
		name       string
		pixels     []uint8
		w, h       int
		tMin, tMax float64
		want       []float64
	}{
		{
			name:   "градиент",
			pixels: []uint8{0, 51, 102, 255},
			w:      2, h: 2,
			tMin: 0, tMax: 100,
			want: []float64{0, 20, 40, 100},
		},
		{
			name:   "отрицательный диапазон",
			pixels: []uint8{10, 20},
			w:      2, h: 1,
			tMin: -50, tMax: -10,
			want: []float64{-50, -10},
		},
		{
			name:   "один пиксель",
			pixels: []uint8{77},
			w:      1, h: 1,
			tMin: 98, tMax: 550,
			want: []float64{324},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FromGray(tt.pixels, tt.w, tt.h, tt.tMin, tt.tMax)
			require.NoError(t, err)
			require.Len(t, m.Values, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], m.Values[i], 1e-9, "индекс %d", i)
			}
		})
	}
}

func TestFromGray_WithinRange(t *testing.T) {
	pixels := make([]uint8, 256)
	for i := range pixels {
		pixels[i] = uint8((i * 37) % 256)
	}
	ranges := [][2]float64{{0, 1}, {98, 550}, {-273.15, 0}, {1e-3, 2e-3}}
	for _, r := range ranges {
		m, err := FromGray(pixels, 16, 16, r[0], r[1])
		require.NoError(t, err)
		for _, v := range m.Values {
			assert.True(t, v >= r[0] && v <= r[1], "%v вне диапазона %v", v, r)
		}
	}
}

func TestFromGray_BadSize(t *testing.T) {
	_, err := FromGray([]uint8{1, 2, 3}, 2, 2, 0, 1)
	require.Error(t, err)
	assert.Equal(t, model.ErrDecode, errors.Cause(err))
}

func TestStatsFromRegion(t *testing.T) {
	// 4x3, значения равны индексу
	m := &Matrix{Width: 4, Height: 3, Values: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}

	tests := []struct {
		name    string
		box     model.Box
		want    model.Stats
		wantErr bool
	}{
		{
			name: "вся матрица",
			box:  model.Box{XLo: 0, YLo: 0, XHi: 4, YHi: 3},
			want: model.Stats{Min: 0, Max: 11, Mean: 5.5, Std: math.Sqrt(143.0 / 12), Width: 4, Height: 3},
		},
		{
			name: "центр",
			box:  model.Box{XLo: 1, YLo: 1, XHi: 3, YHi: 2},
			want: model.Stats{Min: 5, Max: 6, Mean: 5.5, Std: 0.5, Width: 2, Height: 1},
		},
		{
			name: "один пиксель",
			box:  model.Box{XLo: 3, YLo: 2, XHi: 4, YHi: 3},
			want: model.Stats{Min: 11, Max: 11, Mean: 11, Std: 0, Width: 1, Height: 1},
		},
		{name: "нулевая ширина", box: model.Box{XLo: 2, YLo: 0, XHi: 2, YHi: 3}, wantErr: true},
		{name: "за пределами кадра", box: model.Box{XLo: 10, YLo: 10, XHi: 12, YHi: 12}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatsFromRegion(m, tt.box)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, model.ErrEmptyRegion, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Min, got.Min, 1e-9)
			assert.InDelta(t, tt.want.Max, got.Max, 1e-9)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-9)
			assert.InDelta(t, tt.want.Std, got.Std, 1e-9)
			assert.Equal(t, tt.want.Width, got.Width)
			assert.Equal(t, tt.want.Height, got.Height)
		})
	}
}

func TestRegion(t *testing.T) {
	m := &Matrix{Width: 3, Height: 3, Values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	r, err := m.Region(model.Box{XLo: 1, YLo: 0, XHi: 3, YHi: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 5, 6}, r.Values)
	assert.Equal(t, 2, r.Width)
	assert.Equal(t, 2, r.Height)
}

func TestToVector(t *testing.T) {
	seq := func(n int) []float64 {
		res := make([]float64, n)
		for i := range res {
			res[i] = float64(i)
		}
		return res
	}

	tests := []struct {
		name   string
		values []float64
		maxLen int
		want   []float64
	}{
		{name: "без ограничения", values: seq(5), maxLen: 0, want: seq(5)},
		{name: "отрицательное ограничение", values: seq(5), maxLen: -1, want: seq(5)},
		{name: "не превышает", values: seq(5), maxLen: 5, want: seq(5)},
		{name: "шаг 2", values: seq(10), maxLen: 5, want: []float64{0, 2, 4, 6, 8}},
		{name: "шаг с округлением вверх", values: seq(10), maxLen: 4, want: []float64{0, 3, 6, 9}},
		{name: "шаг 4", values: seq(10), maxLen: 3, want: []float64{0, 4, 8}},
		{name: "один элемент", values: seq(10), maxLen: 1, want: []float64{0}},
		{name: "пустой вход", values: []float64{}, maxLen: 3, want: []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToVector(tt.values, tt.maxLen)
			assert.Equal(t, tt.want, got)
			if tt.maxLen > 0 {
				assert.LessOrEqual(t, len(got), tt.maxLen)
			}
		})
	}
}

func TestToVector_Bound(t *testing.T) {
	values := make([]float64, 15001)
	for _, maxLen := range []int{1, 2, 7, 100, 14999, 15000} {
		got := ToVector(values, maxLen)
		if len(got) > maxLen {
			pp.Println(maxLen, len(got))
		}
		assert.LessOrEqual(t, len(got), maxLen)
		assert.NotEmpty(t, got)
	}
}
