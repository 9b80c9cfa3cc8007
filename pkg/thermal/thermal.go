// Package thermal перевод яркости кадра в температурную матрицу и статистика по областям
package thermal

import (
	"math"

	"github.com/juju/errors"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
)

// Matrix температурная матрица кадра, хранится построчно
type Matrix struct {
	Width  int
	Height int
	Values []float64
}

// At температура в точке (x, y)
func (m Matrix) At(x, y int) float64 {
	return m.Values[y*m.Width+x]
}

// BuildMatrix переводит RGB кадр в оттенки серого и линейно отображает нормированную по кадру
// яркость [min..max] -> [0..1] в диапазон [tMin..tMax]. Кадр без перепадов яркости
// отображается в середину диапазона
func BuildMatrix(rgb gocv.Mat, tMin, tMax float64) (*Matrix, error) {
	if err := model.ValidateRange(tMin, tMax); err != nil {
		return nil, errors.Trace(err)
	}
	if rgb.Empty() {
		return nil, errors.Annotate(model.ErrDecode, "пустой кадр")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch rgb.Channels() {
	case 1:
		rgb.CopyTo(&gray)
	case 4:
		gocv.CvtColor(rgb, &gray, gocv.ColorRGBAToGray)
	default:
		gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)
	}
	if gray.Type() != gocv.MatTypeCV8U {
		gray.ConvertTo(&gray, gocv.MatTypeCV8U)
	}

	return FromGray(gray.ToBytes(), gray.Cols(), gray.Rows(), tMin, tMax)
}

// FromGray строит матрицу из яркостей 8 бит (построчно, width*height значений)
func FromGray(pixels []uint8, width, height int, tMin, tMax float64) (*Matrix, error) {
	if err := model.ValidateRange(tMin, tMax); err != nil {
		return nil, errors.Trace(err)
	}
	if width <= 0 || height <= 0 || len(pixels) < width*height {
		return nil, errors.Annotatef(model.ErrDecode, "размер %dx%d не совпадает с данными (%d)", width, height, len(pixels))
	}

	pixels = pixels[:width*height]
	lo, hi := pixels[0], pixels[0]
	for _, p := range pixels {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}

	span := tMax - tMin
	values := make([]float64, len(pixels))
	if hi == lo {
		mid := tMin + 0.5*span
		for i := range values {
			values[i] = mid
		}
	} else {
		scale := 1.0 / float64(hi-lo)
		for i, p := range pixels {
			norm := float64(p-lo) * scale
			values[i] = clamp(tMin+norm*span, tMin, tMax)
		}
	}

	return &Matrix{Width: width, Height: height, Values: values}, nil
}

// Region подматрица области box. Границы как у среза: верхние не включаются
func (m Matrix) Region(box model.Box) (*Matrix, error) {
	box = clip(box, m.Width, m.Height)
	if box.Empty() {
		return nil, errors.Annotatef(model.ErrEmptyRegion, "%v в кадре %dx%d", box.Slice(), m.Width, m.Height)
	}

	w, h := box.Width(), box.Height()
	values := make([]float64, 0, w*h)
	for y := box.YLo; y < box.YHi; y++ {
		row := y * m.Width
		values = append(values, m.Values[row+box.XLo:row+box.XHi]...)
	}
	return &Matrix{Width: w, Height: h, Values: values}, nil
}

// Vector вектор температур матрицы, не длиннее maxLen
func (m Matrix) Vector(maxLen int) []float64 {
	return ToVector(m.Values, maxLen)
}

// StatsFromRegion статистика температур в области box. Ширина и высота берутся из box
func StatsFromRegion(m *Matrix, box model.Box) (model.Stats, error) {
	if m == nil {
		return model.Stats{}, errors.Annotate(model.ErrEmptyRegion, "нет матрицы")
	}
	region, err := m.Region(box)
	if err != nil {
		return model.Stats{}, errors.Trace(err)
	}

	stats := model.Stats{
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
		Width:  box.Width(),
		Height: box.Height(),
	}
	var sum float64
	for _, v := range region.Values {
		sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	n := float64(len(region.Values))
	stats.Mean = sum / n

	var sq float64
	for _, v := range region.Values {
		d := v - stats.Mean
		sq += d * d
	}
	stats.Std = math.Sqrt(sq / n)
	return stats, nil
}

// ToVector прореживает последовательность до длины не более maxLen: шаг ceil(len/maxLen),
// берётся первый элемент каждого окна. maxLen <= 0 означает без ограничения
func ToVector(values []float64, maxLen int) []float64 {
	if maxLen <= 0 || len(values) <= maxLen {
		res := make([]float64, len(values))
		copy(res, values)
		return res
	}

	stride := (len(values) + maxLen - 1) / maxLen
	res := make([]float64, 0, (len(values)+stride-1)/stride)
	for i := 0; i < len(values); i += stride {
		res = append(res, values[i])
	}
	return res
}

// Обрезает область по границам кадра, не меняя её смысла
func clip(box model.Box, width, height int) model.Box {
	box.XLo = clampInt(box.XLo, 0, width)
	box.XHi = clampInt(box.XHi, 0, width)
	box.YLo = clampInt(box.YLo, 0, height)
	box.YHi = clampInt(box.YHi, 0, height)
	return box
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
