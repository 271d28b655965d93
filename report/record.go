package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// NotApplicable is written for every field a result file does not carry.
const NotApplicable = "N/A"

type Field struct {
	Name  string
	Value string
}

// Record is one parsed result file. Field order is column order.
type Record []Field

func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

type extractor func(doc map[string]any) (any, bool)

type column struct {
	name    string
	extract extractor
}

// Schema maps a result document produced by one benchmark tool onto summary columns.
type Schema struct {
	Name    string
	columns []column
}

func (s *Schema) Columns() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

func (s *Schema) Extract(doc map[string]any) Record {
	rec := make(Record, 0, len(s.columns))
	for _, c := range s.columns {
		value := NotApplicable
		if v, ok := c.extract(doc); ok {
			value = formatValue(v)
		}
		rec = append(rec, Field{Name: c.name, Value: value})
	}
	return rec
}

func key(name string) extractor {
	return func(doc map[string]any) (any, bool) {
		v, ok := doc[name]
		return v, ok && v != nil
	}
}

func first(name string) extractor {
	return func(doc map[string]any) (any, bool) {
		items, ok := doc[name].([]any)
		if !ok || len(items) == 0 || items[0] == nil {
			return nil, false
		}
		return items[0], true
	}
}

func nested(name, sub string) extractor {
	return func(doc map[string]any) (any, bool) {
		obj, ok := doc[name].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[sub]
		return v, ok && v != nil
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(buf)
	}
}

// ServingSchema reads the result files written by vLLM's benchmark_serving.py --save-result.
var ServingSchema = &Schema{
	Name: "serving",
	columns: []column{
		{"model_id", key("model_id")},
		{"input_lens_first", first("input_lens")},
		{"output_lens_first", first("output_lens")},
		{"num_prompts", key("num_prompts")},
		{"Concurrency", key("max_concurrency")},
		{"request_throughput", key("request_throughput")},
		{"output_throughput", key("output_throughput")},
		{"total_token_throughput", key("total_token_throughput")},
		{"mean_ttft_ms", key("mean_ttft_ms")},
		{"median_ttft_ms", key("median_ttft_ms")},
		{"p99_ttft_ms", key("p99_ttft_ms")},
		{"mean_tpot_ms", key("mean_tpot_ms")},
		{"median_tpot_ms", key("median_tpot_ms")},
		{"p99_tpot_ms", key("p99_tpot_ms")},
		{"mean_itl_ms", key("mean_itl_ms")},
		{"median_itl_ms", key("median_itl_ms")},
		{"p99_itl_ms", key("p99_itl_ms")},
		{"duration", key("duration")},
	},
}

// GenAIPerfSchema reads the JSON summaries written by genai-perf --json.
var GenAIPerfSchema = &Schema{
	Name: "genai-perf",
	columns: []column{
		{"model", key("model_id")},
		{"num_prompts", key("num_prompts")},
		{"concurrency", key("concurrency")},
		{"p50_latency_ms", nested("latency", "p50")},
		{"p90_latency_ms", nested("latency", "p90")},
		{"p99_latency_ms", nested("latency", "p99")},
		{"throughput_rps", key("throughput")},
		{"success_rate", key("success_rate")},
		{"timestamp", key("timestamp")},
	},
}

// ParseResultFile decodes one JSON result document. Any error means the file should be skipped.
func ParseResultFile(path string, schema *Schema) (Record, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	doc, err := decodeDocument(buf)
	if err != nil {
		return nil, err
	}
	return schema.Extract(doc), nil
}

func decodeDocument(buf []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding JSON: unexpected data after the document")
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding JSON: top-level value is %T, not an object", doc)
	}
	return obj, nil
}
