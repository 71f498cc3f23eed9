package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerTagsOutput(t *testing.T) {
	prev := Root()
	defer SetRoot(prev)

	var buf bytes.Buffer
	SetRoot(New(&buf, zerolog.DebugLevel))
	log := Component("ufio")
	log.Info().Int("fd", 5).Msg("armed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ufio", rec["component"])
	assert.Equal(t, "armed", rec["message"])
	assert.Equal(t, float64(5), rec["fd"])
	assert.Contains(t, rec, "time")
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel)
	l.Info().Msg("filtered")
	assert.Zero(t, buf.Len())
}
