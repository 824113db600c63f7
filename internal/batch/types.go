// Package batch runs the recognizer over record files and writes the
// matches as Parquet.
package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one input text
type Record struct {
	ID     string `parquet:"id" json:"id"`
	Locale string `parquet:"locale" json:"locale"`
	Text   string `parquet:"text" json:"text"`
}

// MatchRow is one output row: a single recognized span of a record
type MatchRow struct {
	RecordID string `parquet:"record_id"`
	Locale   string `parquet:"locale"`
	Begin    int32  `parquet:"begin"`
	End      int32  `parquet:"end"`
	Type     string `parquet:"type"`
	RuleID   string `parquet:"rule_id"`
	Text     string `parquet:"text"`
}

// Result represents the result of processing a dataset
type Result struct {
	TotalRecords int64         `json:"total_records"`
	Processed    int64         `json:"processed"`
	Invalid      int64         `json:"invalid"`
	Failed       int64         `json:"failed"`
	Matches      int64         `json:"matches"`
	Duration     time.Duration `json:"duration"`
	DetectTime   time.Duration `json:"detect_time"`
	Errors       []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	Workers       int
	RowGroupSize  int
	DefaultLocale string
	Format        FileFormat // empty to infer from the input extension
}

// FileFormat represents supported input formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSONL   FileFormat = "jsonl"
	FormatParquet FileFormat = "parquet"
)

// maxErrors bounds Result.Errors
const maxErrors = 100

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// ParseFileFormat validates a user supplied format name
func ParseFileFormat(name string) (FileFormat, bool) {
	switch f := FileFormat(strings.ToLower(name)); f {
	case FormatCSV, FormatJSONL, FormatParquet:
		return f, true
	case "json", "ndjson":
		return FormatJSONL, true
	}
	return "", false
}
