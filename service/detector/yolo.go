package detector

import (
	"math"
	"sort"
)

// candidate кандидат детекции в координатах входа сети
type candidate struct {
	class      int
	confidence float64
	// Прямоугольник x1, y1, x2, y2
	box [4]float64
	// Коэффициенты маски (сегментация) или ключевые точки (поза)
	extra []float64
}

// Разбирает выход YOLO вида [C, N] (каналы по первой оси): cx, cy, w, h, затем nc оценок
// классов и extra дополнительных значений на кандидата
func decodeCandidates(t tensor, nc, extra int, threshold float64) []candidate {
	shape := t.shape()
	if len(shape) != 2 {
		return nil
	}
	channels, n := shape[0], shape[1]
	// Некоторые экспорты кладут кандидатов по первой оси
	transposed := false
	if channels != 4+nc+extra && n == 4+nc+extra {
		channels, n = n, channels
		transposed = true
	}
	if channels != 4+nc+extra || nc <= 0 {
		return nil
	}

	at := func(c, i int) float64 {
		if transposed {
			return float64(t.data[i*channels+c])
		}
		return float64(t.data[c*n+i])
	}

	res := make([]candidate, 0)
	for i := 0; i < n; i++ {
		best, class := -1.0, -1
		for c := 0; c < nc; c++ {
			if score := at(4+c, i); score > best {
				best, class = score, c
			}
		}
		if best < threshold {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		cand := candidate{
			class:      class,
			confidence: best,
			box:        [4]float64{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
			extra:      make([]float64, extra),
		}
		for e := 0; e < extra; e++ {
			cand.extra[e] = at(4+nc+e, i)
		}
		res = append(res, cand)
	}
	return res
}

// Жадное подавление немаксимумов по классам
func nms(cands []candidate, iouThreshold float64) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].confidence > cands[j].confidence
	})
	keep := make([]candidate, 0, len(cands))
	for _, c := range cands {
		suppressed := false
		for _, k := range keep {
			if k.class == c.class && iou(k.box, c.box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, c)
		}
	}
	return keep
}

func iou(a, b [4]float64) float64 {
	x1, y1 := math.Max(a[0], b[0]), math.Max(a[1], b[1])
	x2, y2 := math.Min(a[2], b[2]), math.Min(a[3], b[3])
	inter := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b [4]float64) float64 {
	return math.Max(0, b[2]-b[0]) * math.Max(0, b[3]-b[1])
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// Бинарная маска кандидата по прототипам [nm, mh, mw], обрезанная по его прямоугольнику.
// scaleX, scaleY переводят координаты входа сети в координаты прототипов
func maskFromProtos(coef []float64, protos tensor, box [4]float64, scaleX, scaleY float64) ([]uint8, int, int) {
	dims := protos.dims
	for len(dims) > 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 3 || dims[0] != len(coef) {
		return nil, 0, 0
	}
	nm, mh, mw := dims[0], dims[1], dims[2]

	x1 := clampInt(int(math.Floor(box[0]*scaleX)), 0, mw)
	y1 := clampInt(int(math.Floor(box[1]*scaleY)), 0, mh)
	x2 := clampInt(int(math.Ceil(box[2]*scaleX)), 0, mw)
	y2 := clampInt(int(math.Ceil(box[3]*scaleY)), 0, mh)

	mask := make([]uint8, mh*mw)
	plane := mh * mw
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			var sum float64
			for k := 0; k < nm; k++ {
				sum += coef[k] * float64(protos.data[k*plane+y*mw+x])
			}
			if sigmoid(sum) > 0.5 {
				mask[y*mw+x] = 255
			}
		}
	}
	return mask, mw, mh
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
