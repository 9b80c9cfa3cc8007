package logger

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.Equal(t, ioutil.Discard, log.Out)
	assert.NotSame(t, log, Discard())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{name: "отладка", level: "debug", want: logrus.DebugLevel},
		{name: "предупреждения", level: "warning", want: logrus.WarnLevel},
		{name: "неизвестный уровень", level: "verbose", want: logrus.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "", Path("/var/log", ""))
	assert.Equal(t, filepath.Join("/var/log", "termovisor.log"), Path("/var/log", "termovisor.log"))
}
