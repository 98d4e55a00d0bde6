package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Column names accepted for each field, first match wins.
var (
	sampleColumns = []string{"sample"}
	read1Columns  = []string{"read1", "fastq_1", "r1"}
	read2Columns  = []string{"read2", "fastq_2", "r2"}
	groupColumns  = []string{"group", "merge_group"}
)

// Load reads the sample table at path. Files ending in .csv are
// comma-separated, everything else is tab-separated. Relative read paths are
// resolved against the manifest's directory and must exist.
func Load(path string) (*Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Msg: err.Error()}
	}
	defer f.Close()

	comma := '\t'
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		comma = ','
	}

	samples, err := Parse(f, comma, filepath.Dir(path))
	if err != nil {
		var me *ManifestError
		if errors.As(err, &me) && me.Path == "" {
			me.Path = path
		}
		return nil, err
	}
	return samples, nil
}

// Parse reads a sample table from r. baseDir anchors relative read paths.
func Parse(r io.Reader, comma rune, baseDir string) (*Samples, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.Comment = '#'
	// A tab counts as leading space to encoding/csv, which would swallow
	// empty TSV cells.
	reader.TrimLeadingSpace = comma != '\t'

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ManifestError{Msg: "empty table, header row required"}
	}
	if err != nil {
		return nil, &ManifestError{Msg: fmt.Sprintf("reading header: %v", err)}
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var records []Sample
	seen := make(map[string]int)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ManifestError{Line: pe.Line, Msg: pe.Err.Error()}
			}
			return nil, &ManifestError{Msg: err.Error()}
		}
		line, _ := reader.FieldPos(0)

		rec := Sample{
			ID:    strings.TrimSpace(row[cols.sample]),
			Read1: strings.TrimSpace(row[cols.read1]),
			Read2: strings.TrimSpace(row[cols.read2]),
			Group: strings.TrimSpace(row[cols.group]),
		}

		if rec.ID == "" {
			return nil, &ManifestError{Line: line, Msg: "empty sample identifier"}
		}
		if first, dup := seen[rec.ID]; dup {
			return nil, &ManifestError{Line: line, Msg: fmt.Sprintf("duplicate sample %q (first on line %d)", rec.ID, first)}
		}
		seen[rec.ID] = line

		if rec.Group == "" {
			return nil, &ManifestError{Line: line, Msg: fmt.Sprintf("sample %q has an empty group label", rec.ID)}
		}

		for _, read := range []*string{&rec.Read1, &rec.Read2} {
			if *read == "" {
				return nil, &ManifestError{Line: line, Msg: fmt.Sprintf("sample %q has an empty input path", rec.ID)}
			}
			if !filepath.IsAbs(*read) && baseDir != "" {
				*read = filepath.Join(baseDir, *read)
			}
			if _, err := os.Stat(*read); err != nil {
				return nil, &ManifestError{Line: line, Msg: fmt.Sprintf("sample %q input %s: %v", rec.ID, *read, err)}
			}
		}

		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, &ManifestError{Msg: "no samples"}
	}
	return NewSamples(records)
}

type columnIndex struct {
	sample, read1, read2, group int
}

func resolveColumns(header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.ToLower(strings.TrimSpace(name))] = i
	}

	find := func(field string, names []string) (int, error) {
		for _, n := range names {
			if i, ok := pos[n]; ok {
				return i, nil
			}
		}
		return 0, &ManifestError{Msg: fmt.Sprintf("missing %s column (one of %s)", field, strings.Join(names, ", "))}
	}

	var (
		cols columnIndex
		err  error
	)
	if cols.sample, err = find("sample", sampleColumns); err != nil {
		return cols, err
	}
	if cols.read1, err = find("read1", read1Columns); err != nil {
		return cols, err
	}
	if cols.read2, err = find("read2", read2Columns); err != nil {
		return cols, err
	}
	if cols.group, err = find("group", groupColumns); err != nil {
		return cols, err
	}
	return cols, nil
}
