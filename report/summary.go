package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/alitto/pond"
)

// ErrNoRecords is returned by WriteSummary when no result file could be parsed. No file is written.
var ErrNoRecords = errors.New("no valid JSON result files")

type SummaryResult struct {
	Path      string
	Processed int
	Skipped   int
	Records   []Record
}

type resultFile struct {
	path string
	info os.FileInfo
}

// ListResultFiles returns the regular *.json files directly inside dir, oldest first.
// Files with equal modification times are ordered by name.
func ListResultFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	files := []resultFile{}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("can't stat result file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, resultFile{path: path, info: info})
	}

	sort.SliceStable(files, func(i, j int) bool {
		ti, tj := files[i].info.ModTime(), files[j].info.ModTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return files[i].info.Name() < files[j].info.Name()
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

type parsed struct {
	record Record
	err    error
}

// WriteSummary parses every result file in dir and writes one CSV row per parsed file to outputPath.
// Files that fail to parse are skipped and counted.
func WriteSummary(dir, outputPath string, schema *Schema) (*SummaryResult, error) {
	paths, err := ListResultFiles(dir)
	if err != nil {
		return nil, err
	}

	results := make([]parsed, len(paths))
	if len(paths) > 0 {
		workers := min(len(paths), runtime.NumCPU())
		pool := pond.New(workers, 0, pond.MinWorkers(workers))
		for i, path := range paths {
			pool.Submit(func() {
				rec, err := ParseResultFile(path, schema)
				results[i] = parsed{record: rec, err: err}
			})
		}
		pool.StopAndWait()
	}

	res := &SummaryResult{}
	for i, path := range paths {
		slog.Info("processing result file", slog.String("path", path))
		if results[i].err != nil {
			slog.Warn("skipping result file", slog.String("path", path), slog.String("error", results[i].err.Error()))
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, results[i].record)
		res.Processed++
	}

	if len(res.Records) == 0 {
		return res, ErrNoRecords
	}

	if err := writeCSV(outputPath, res.Records); err != nil {
		return res, err
	}
	res.Path = outputPath
	return res, nil
}

func writeCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}
	defer f.Close()

	header := records[0].Names()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, name := range header {
			row[i], _ = rec.Get(name)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return f.Close()
}
