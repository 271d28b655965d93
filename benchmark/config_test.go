package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigs(t *testing.T) {
	configs, err := ParseConfigs([]byte(`
- model: meta-llama/Llama-3.1-8B-Instruct
  base_url: http://localhost:8000
  concurrency: 10
  request_rate: inf
- &second
  model: m2
  concurrency: 50
  request_rate: 2.5
- *second
`))
	require.NoError(t, err)
	require.Len(t, configs, 3)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", configs[0]["model"])
	assert.Equal(t, 10, configs[0]["concurrency"])
	assert.Equal(t, "inf", configs[0]["request_rate"])
	assert.Equal(t, 2.5, configs[1]["request_rate"])
	assert.Equal(t, configs[1], configs[2])
}

func TestParseConfigsRejectsWrongShapes(t *testing.T) {
	cases := map[string]string{
		"mapping root":   "model: m\nconcurrency: 1\n",
		"scalar root":    "just a string\n",
		"empty":          "",
		"scalar entry":   "- model: m\n- 42\n",
		"nested list":    "- [1, 2]\n",
		"malformed yaml": "- model: [unclosed\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfigs([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseConfigsEmptyList(t *testing.T) {
	configs, err := ParseConfigs([]byte("[]\n"))
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestLoadConfigsMissingFile(t *testing.T) {
	_, err := LoadConfigs(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type testInput struct {
	Model       string `mapstructure:"model" validate:"required"`
	Concurrency int    `mapstructure:"concurrency" validate:"required,gt=0"`
	RequestRate string `mapstructure:"request_rate"`
}

func TestDecodeInput(t *testing.T) {
	in := &testInput{}
	require.NoError(t, DecodeInput(Config{"model": "m", "concurrency": 4, "request_rate": 10, "extra": true}, in))
	assert.Equal(t, &testInput{Model: "m", Concurrency: 4, RequestRate: "10"}, in)
}

func TestDecodeInputMissingFields(t *testing.T) {
	err := DecodeInput(Config{"request_rate": "inf"}, &testInput{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "model (missing)")
	assert.Contains(t, err.Error(), "concurrency (missing)")
}

func TestDecodeInputBadValues(t *testing.T) {
	err := DecodeInput(Config{"model": "m", "concurrency": -1}, &testInput{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "concurrency (must be gt 0)")

	err = DecodeInput(Config{"model": "m", "concurrency": "many"}, &testInput{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDecodeInputRejectsNonIntegers(t *testing.T) {
	err := DecodeInput(Config{"model": "m", "concurrency": 10.5}, &testInput{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "concurrency")

	err = DecodeInput(Config{"model": "m", "concurrency": true}, &testInput{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	in := &testInput{}
	require.NoError(t, DecodeInput(Config{"model": "m", "concurrency": 10.0, "request_rate": 2.5}, in))
	assert.Equal(t, 10, in.Concurrency)
	assert.Equal(t, "2.5", in.RequestRate)
}

func TestParsedFractionalConcurrencyIsInvalid(t *testing.T) {
	configs, err := ParseConfigs([]byte("- model: m\n  concurrency: 10.5\n"))
	require.NoError(t, err)
	require.ErrorIs(t, DecodeInput(configs[0], &testInput{}), ErrInvalidConfig)
}

func TestValidateAllReportsEveryEntry(t *testing.T) {
	d := &fakeDriver{}
	err := ValidateAll(d, []Config{
		{"model": "a", "concurrency": 1},
		{"concurrency": 2},
		{"model": "c"},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "entry 2")
	assert.Contains(t, err.Error(), "entry 3")
	assert.NotContains(t, err.Error(), "entry 1")

	assert.NoError(t, ValidateAll(d, []Config{{"model": "a", "concurrency": 1}}))
}
