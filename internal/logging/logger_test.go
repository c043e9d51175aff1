package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_LevelAndFormat(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := NewWithWriter(&buf, "warn", "json")
	log.Info().Msg("hidden")
	log.Warn().Str("component", "hub").Msg("shown")

	req.NotContains(buf.String(), "hidden")
	req.Contains(buf.String(), `"component":"hub"`)
	req.Equal(zerolog.WarnLevel, log.GetLevel())
}

func TestNewWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := NewWithWriter(&bytes.Buffer{}, "loud", "console")
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
