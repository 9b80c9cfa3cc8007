//go:build matprofile
// +build matprofile

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kirsrus/termovisor/model"
)

// Запуск: go test -tags matprofile ./controller/ingest/
func TestIngest_NoMatLeak(t *testing.T) {
	png := solidPNG(t, 3, 3)
	f := newFixture([]model.SourceCollection{{
		Side: "LEFT",
		Date: testDate,
		Images: []model.SourceImage{
			{Side: "LEFT", IsThermal: true, Name: "ok", Base64String: png},
			{Side: "LEFT", IsThermal: true, Name: "bad", Base64String: "@@@"},
			{Side: "LEFT", IsThermal: true, Name: "text", Base64String: "aGVsbG8gd29ybGQ="},
			{Side: "LEFT", Name: "skip", Base64String: png},
		},
	}})
	ingest := f.ingest(t, ConfigIngest{})

	before := gocv.MatProfile.Count()
	result, err := ingest.Process(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, before, gocv.MatProfile.Count())
}
