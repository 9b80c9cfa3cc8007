package imaging

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
)

// Кодирует однотонное изображение BGR w x h в PNG data URI
func solidPNG(t *testing.T, w, h int, b, g, r float64) string {
	t.Helper()
	bgr := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), h, w, gocv.MatTypeCV8UC3)
	defer bgr.Close()
	encoded, err := Encode(bgr)
	require.NoError(t, err)
	return encoded
}

func TestDecode(t *testing.T) {
	png := solidPNG(t, 12, 7, 10, 20, 30)
	require.True(t, strings.HasPrefix(png, "data:image/png;base64,"))

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "data uri", input: png},
		{name: "data uri в верхнем регистре", input: "DATA:IMAGE/PNG;BASE64," + strings.TrimPrefix(png, pngPrefix)},
		{name: "без префикса", input: strings.TrimPrefix(png, pngPrefix)},
		{name: "пустая строка", input: "", wantErr: true},
		{name: "только пробелы", input: "   ", wantErr: true},
		{name: "некорректный base64", input: "@@@###", wantErr: true},
		{name: "текст вместо изображения", input: base64.StdEncoding.EncodeToString([]byte("hello world")), wantErr: true},
		{name: "мусорные байты", input: base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0x02, 0x03, 0x04}), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rgb, err := Decode(tt.input)
			defer rgb.Close()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, model.ErrDecode, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.Size{W: 12, H: 7}, SizeOf(rgb))
			assert.Equal(t, 3, rgb.Channels())

			// Порядок каналов RGB
			pixel := rgb.GetVecbAt(0, 0)
			assert.Equal(t, []uint8{30, 20, 10}, []uint8{pixel[0], pixel[1], pixel[2]})
		})
	}
}

func TestEncode_Empty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := Encode(empty)
	require.Error(t, err)
	assert.Equal(t, model.ErrEncode, errors.Cause(err))
}

func TestResize(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 40, 60, gocv.MatTypeCV8UC3)
	defer src.Close()
	dst := Resize(src, model.Size{W: 15, H: 10})
	defer dst.Close()
	assert.Equal(t, model.Size{W: 15, H: 10}, SizeOf(dst))
}

func TestToBGR(t *testing.T) {
	rgb := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer rgb.Close()
	bgr := ToBGR(rgb)
	defer bgr.Close()
	pixel := bgr.GetVecbAt(1, 1)
	assert.Equal(t, []uint8{3, 2, 1}, []uint8{pixel[0], pixel[1], pixel[2]})
}

func TestStripDataURI(t *testing.T) {
	assert.Equal(t, "QUJD", StripDataURI(" data:application/octet-stream;base64,QU\nJD "))
	assert.Equal(t, "QUJD", StripDataURI("QUJD"))
}
