package configutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vendorSettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	TimeoutMs   int      `mapstructure:"timeout_ms"`
	Transcripts []string `mapstructure:"transcripts"`
	internal    string
}

func TestDecodeNormalizesKeys(t *testing.T) {
	var out vendorSettings
	schema := Schema{Required: []string{"api_key"}, Optional: Keys(vendorSettings{})}
	err := Decode(Settings{"API-Key": "k", "model": "m", "timeoutMs": "250", "transcripts": "hi,bye"}, schema, &out)
	require.NoError(t, err)
	assert.Equal(t, "k", out.APIKey)
	assert.Equal(t, "m", out.Model)
	assert.Equal(t, 250, out.TimeoutMs)
	assert.Equal(t, []string{"hi", "bye"}, out.Transcripts)
}

func TestValidateReportsMissingAndUnknown(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}
	err := schema.Validate(Settings{"api_key": "  ", "voice": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing: api_key")
	assert.Contains(t, err.Error(), "unknown: voice")

	schema.AllowUnknown = true
	assert.NoError(t, schema.Validate(Settings{"api_key": "k", "voice": "x"}))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"api_key", "model", "timeout_ms", "transcripts"}, Keys(&vendorSettings{}))
	assert.Nil(t, Keys("nope"))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VOICE_TEST_KEY", "secret")
	in := Settings{
		"api_key": "${VOICE_TEST_KEY}",
		"nested":  map[string]any{"k": "$VOICE_TEST_KEY"},
		"list":    []any{"a-${VOICE_TEST_KEY}", 3},
	}
	out := ExpandEnv(in)
	assert.Equal(t, "secret", out["api_key"])
	assert.Equal(t, "secret", out["nested"].(map[string]any)["k"])
	assert.Equal(t, []any{"a-secret", 3}, out["list"])
}
