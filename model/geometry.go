package model

// Box прямоугольная область в пикселях. Нижние границы включительно, верхние не включаются
// (как при взятии среза)
type Box struct {
	XLo int
	YLo int
	XHi int
	YHi int
}

// Width ширина области
func (m Box) Width() int { return m.XHi - m.XLo }

// Height высота области
func (m Box) Height() int { return m.YHi - m.YLo }

// Empty область не имеет площади
func (m Box) Empty() bool { return m.XHi <= m.XLo || m.YHi <= m.YLo }

// Slice представление области в виде [x_lo, y_lo, x_hi, y_hi]
func (m Box) Slice() []int { return []int{m.XLo, m.YLo, m.XHi, m.YHi} }

// Size размер кадра
type Size struct {
	W int
	H int
}

// Polygon полигон, возвращаемый детектором областей, в координатах кадра детектора
type Polygon struct {
	Class      string
	Confidence float64
	// Точки [x, y]
	Points [][2]float64
}

// KeypointInstance один найденный экземпляр с ключевыми точками. Ожидаются две точки:
// голова и хвост стрелки
type KeypointInstance struct {
	// Уверенность детектора. nil, если модель её не вернула
	Confidence *float64
	// Точки [x, y] или [x, y, visibility]
	Points [][]float64
}

// Angle угол, вычисленный по паре ключевых точек
type Angle struct {
	Index     int        `json:"index"`
	AngleDeg  float64    `json:"angle_deg"`
	Head      [2]float64 `json:"head"`
	Tail      [2]float64 `json:"tail"`
	LengthPx  float64    `json:"length_px"`
	Radians   float64    `json:"radians"`
	Direction string     `json:"direction"`
}

// Stats статистика температур в области
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}
