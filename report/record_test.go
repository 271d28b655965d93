package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const servingResult = `{
  "date": "20250101-120000",
  "backend": "vllm",
  "model_id": "meta-llama/Llama-3.1-8B-Instruct",
  "num_prompts": 200,
  "max_concurrency": 16,
  "request_throughput": 12.5,
  "output_throughput": 1600.25,
  "total_token_throughput": 3200.5,
  "mean_ttft_ms": 45.1,
  "median_ttft_ms": 40,
  "p99_ttft_ms": 120.75,
  "mean_tpot_ms": 9.5,
  "median_tpot_ms": 9.25,
  "p99_tpot_ms": 15,
  "mean_itl_ms": 9.6,
  "median_itl_ms": 9.1,
  "p99_itl_ms": 30.2,
  "duration": 16.04,
  "input_lens": [1024, 1024, 1024],
  "output_lens": [128, 127]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseServingResult(t *testing.T) {
	path := writeFile(t, t.TempDir(), "result.json", servingResult)

	rec, err := ParseResultFile(path, ServingSchema)
	require.NoError(t, err)

	assert.Equal(t, ServingSchema.Columns(), rec.Names())
	expected := map[string]string{
		"model_id":               "meta-llama/Llama-3.1-8B-Instruct",
		"input_lens_first":       "1024",
		"output_lens_first":      "128",
		"num_prompts":            "200",
		"Concurrency":            "16",
		"request_throughput":     "12.5",
		"output_throughput":      "1600.25",
		"total_token_throughput": "3200.5",
		"median_ttft_ms":         "40",
		"p99_ttft_ms":            "120.75",
		"p99_tpot_ms":            "15",
		"duration":               "16.04",
	}
	for name, want := range expected {
		got, ok := rec.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	path := writeFile(t, t.TempDir(), "result.json", servingResult)

	a, err := ParseResultFile(path, ServingSchema)
	require.NoError(t, err)
	b, err := ParseResultFile(path, ServingSchema)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseMissingFieldsAreNotApplicable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sparse.json", `{"model_id": "m", "input_lens": [], "mean_ttft_ms": null}`)

	rec, err := ParseResultFile(path, ServingSchema)
	require.NoError(t, err)
	require.Len(t, rec, len(ServingSchema.Columns()))

	for _, f := range rec {
		if f.Name == "model_id" {
			assert.Equal(t, "m", f.Value)
			continue
		}
		assert.Equal(t, NotApplicable, f.Value, f.Name)
	}
}

func TestParseGenAIPerfResult(t *testing.T) {
	path := writeFile(t, t.TempDir(), "genai.json", `{
		"model_id": "llama",
		"num_prompts": 100,
		"concurrency": 8,
		"latency": {"p50": 110.5, "p90": 180},
		"throughput": 42.125,
		"success_rate": 1.0,
		"timestamp": "2025-01-01T12:00:00Z"
	}`)

	rec, err := ParseResultFile(path, GenAIPerfSchema)
	require.NoError(t, err)
	assert.Equal(t, Record{
		{"model", "llama"},
		{"num_prompts", "100"},
		{"concurrency", "8"},
		{"p50_latency_ms", "110.5"},
		{"p90_latency_ms", "180"},
		{"p99_latency_ms", NotApplicable},
		{"throughput_rps", "42.125"},
		{"success_rate", "1.0"},
		{"timestamp", "2025-01-01T12:00:00Z"},
	}, rec)
}

func TestParseGenAIPerfLatencyNotAnObject(t *testing.T) {
	path := writeFile(t, t.TempDir(), "genai.json", `{"latency": 5}`)

	rec, err := ParseResultFile(path, GenAIPerfSchema)
	require.NoError(t, err)
	v, _ := rec.Get("p50_latency_ms")
	assert.Equal(t, NotApplicable, v)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"truncated.json": `{"model_id": "m", "num_prompts": 1`,
		"garbage.json":   `not json`,
		"array.json":     `[1, 2, 3]`,
		"trailing.json":  `{"a": 1} {"b": 2}`,
		"empty.json":     ``,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResultFile(writeFile(t, dir, name, content), ServingSchema)
			assert.Error(t, err)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := ParseResultFile(filepath.Join(t.TempDir(), "nope.json"), ServingSchema)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatNestedValue(t *testing.T) {
	assert.Equal(t, `[1,2]`, formatValue([]any{1, 2}))
	assert.Equal(t, "true", formatValue(true))
}
