// Package imaging декодирование изображений из base64 и обратное кодирование в PNG
package imaging

import (
	"encoding/base64"
	"image"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/errors"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
)

// Префикс PNG при кодировании
const pngPrefix = "data:image/png;base64,"

var (
	reDataURI = regexp.MustCompile(`(?i)^data:[^,]*;base64,`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// StripDataURI убирает необязательный префикс data:<тип>;base64, и пробельные символы
func StripDataURI(encoded string) string {
	raw := strings.TrimSpace(encoded)
	raw = reDataURI.ReplaceAllString(raw, "")
	return reSpaces.ReplaceAllString(raw, "")
}

// Decode декодирует изображение из base64 (с префиксом data URI или без) в матрицу RGB 8UC3.
// Все ошибки оборачивают model.ErrDecode. Матрицу нужно закрыть после использования
func Decode(encoded string) (gocv.Mat, error) {
	raw := StripDataURI(encoded)
	if raw == "" {
		return gocv.NewMat(), errors.Annotate(model.ErrDecode, "пустая строка base64")
	}

	buf, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return gocv.NewMat(), errors.Annotatef(model.ErrDecode, "некорректный base64: %v", err)
	}
	if len(buf) == 0 {
		return gocv.NewMat(), errors.Annotate(model.ErrDecode, "пустые данные изображения")
	}

	// Текстовые данные заведомо не изображение, остальное решает OpenCV
	mime := mimetype.Detect(buf)
	if strings.HasPrefix(mime.String(), "text/") {
		return gocv.NewMat(), errors.Annotatef(model.ErrDecode, "данные не являются изображением (%s)", mime.String())
	}

	bgr, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), errors.Annotatef(model.ErrDecode, "%v", err)
	}
	if bgr.Empty() {
		bgr.Close()
		return gocv.NewMat(), errors.Annotatef(model.ErrDecode, "не удалось декодировать %s", mime.String())
	}
	defer bgr.Close()

	rgb := gocv.NewMat()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
	return rgb, nil
}

// Encode кодирует матрицу BGR в PNG и возвращает data:image/png;base64,...
// Ошибки оборачивают model.ErrEncode
func Encode(bgr gocv.Mat) (string, error) {
	if bgr.Empty() {
		return "", errors.Annotate(model.ErrEncode, "пустое изображение")
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, bgr)
	if err != nil {
		return "", errors.Annotatef(model.ErrEncode, "%v", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	if len(data) == 0 {
		return "", errors.Annotate(model.ErrEncode, "пустой результат кодирования")
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// ToBGR копия RGB матрицы в порядке каналов BGR
func ToBGR(rgb gocv.Mat) gocv.Mat {
	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr
}

// Resize масштабирует матрицу до размера size методом INTER_AREA
func Resize(src gocv.Mat, size model.Size) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(size.W, size.H), 0, 0, gocv.InterpolationArea)
	return dst
}

// SizeOf размер кадра
func SizeOf(m gocv.Mat) model.Size {
	return model.Size{W: m.Cols(), H: m.Rows()}
}
