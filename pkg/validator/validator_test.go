package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Side(t *testing.T) {
	type request struct {
		Side string `conform:"trim,upper" validate:"required,side"`
	}

	tests := []struct {
		name    string
		side    string
		want    string
		wantErr bool
	}{
		{name: "левая сторона", side: "LEFT", want: "LEFT"},
		{name: "нижний регистр и пробелы", side: "  right ", want: "RIGHT"},
		{name: "неизвестная сторона", side: "TOP", wantErr: true},
		{name: "пустая сторона", side: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request{Side: tt.side}
			err := Get().ValidateWithConform(&req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, req.Side)
		})
	}
}

func TestValidator_DataURI(t *testing.T) {
	type image struct {
		Base64 string `validate:"omitempty,datauri"`
	}

	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{name: "data uri", value: "data:image/png;base64,iVBORw0KGgo=", ok: true},
		{name: "data uri в верхнем регистре", value: "DATA:IMAGE/PNG;BASE64,iVBORw0KGgo=", ok: true},
		{name: "голый base64", value: "iVBORw0KGgo=", ok: true},
		{name: "только префикс", value: "data:image/png;base64,", ok: false},
		{name: "пустая строка необязательна", value: "", ok: true},
		{name: "base64 с переводами строк", value: "iVBO\nRw0KGgo=", ok: true},
		{name: "запятая вне префикса", value: "abc,def", ok: false},
		{name: "пробелы внутри", value: "iVBO Rw0KGgo=", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Get().Validate(image{Base64: tt.value})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
