package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/chrono-sentinel/internal/datetime"
)

// Detector finds the date and time expressions of a text
type Detector interface {
	Detect(ctx context.Context, locale, text string) []datetime.Match
}

// Pipeline runs detection over record files
type Pipeline struct {
	detector Detector
	config   *Config
	logger   *zap.Logger
}

// NewPipeline creates a new batch pipeline
func NewPipeline(detector Detector, config *Config, logger *zap.Logger) *Pipeline {
	cfg := *config
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = 10000
	}
	return &Pipeline{detector: detector, config: &cfg, logger: logger}
}

type job struct {
	seq    int64
	record Record
}

type outcome struct {
	seq     int64
	invalid bool
	rows    []MatchRow
}

// ProcessFile reads inputPath and writes one Parquet row per match to
// outputPath
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	format := p.config.Format
	if format == "" {
		format = DetectFileFormat(inputPath)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	result, err := p.Process(ctx, format, in, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	return result, err
}

// Process streams records of the given format from in through the
// detector and writes the matches to out. Parquet input must implement
// io.ReaderAt.
func (p *Pipeline) Process(ctx context.Context, format FileFormat, in io.Reader, out io.Writer) (*Result, error) {
	p.logger.Info("Starting batch pipeline",
		zap.String("format", string(format)),
		zap.Int("workers", p.config.Workers),
		zap.Int("row_group_size", p.config.RowGroupSize))

	start := time.Now()
	result := &Result{}

	var (
		readErrs   []string
		readFailed int64
		detectNS   atomic.Int64
	)
	fail := func(err error) {
		readFailed++
		if len(readErrs) < maxErrors {
			readErrs = append(readErrs, err.Error())
		}
		p.logger.Warn("Skipping unreadable record", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, p.config.Workers*2)
	outcomes := make(chan outcome, p.config.Workers*2)

	g.Go(func() error {
		defer close(jobs)
		var seq int64
		emit := func(rec Record) error {
			if rec.ID == "" {
				rec.ID = strconv.FormatInt(seq+1, 10)
			}
			select {
			case jobs <- job{seq: seq, record: rec}:
				seq++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return p.read(format, in, emit, fail)
	})

	var workers sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				began := time.Now()
				o := p.detect(ctx, j)
				detectNS.Add(int64(time.Since(began)))

				select {
				case outcomes <- o:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(outcomes)
		return nil
	})

	g.Go(func() error {
		return p.write(outcomes, out, result)
	})

	err := g.Wait()

	result.Failed = readFailed
	result.Errors = readErrs
	result.TotalRecords += readFailed
	result.DetectTime = time.Duration(detectNS.Load())
	result.Duration = time.Since(start)

	if err != nil {
		return result, fmt.Errorf("batch processing failed: %w", err)
	}

	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed", result.Processed),
		zap.Int64("invalid", result.Invalid),
		zap.Int64("failed", result.Failed),
		zap.Int64("matches", result.Matches),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("detect_time", result.DetectTime))

	return result, nil
}

// detect runs one record. Records without text are reported invalid.
func (p *Pipeline) detect(ctx context.Context, j job) outcome {
	rec := j.record
	if strings.TrimSpace(rec.Text) == "" {
		p.logger.Debug("Invalid record: empty text", zap.String("id", rec.ID))
		return outcome{seq: j.seq, invalid: true}
	}

	locale := rec.Locale
	if locale == "" {
		locale = p.config.DefaultLocale
	}

	matches := p.detector.Detect(ctx, locale, rec.Text)
	runes := []rune(rec.Text)
	rows := make([]MatchRow, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, MatchRow{
			RecordID: rec.ID,
			Locale:   locale,
			Begin:    int32(m.Begin),
			End:      int32(m.End),
			Type:     m.Type.String(),
			RuleID:   string(m.RuleID),
			Text:     string(runes[m.Begin:m.End]),
		})
	}
	return outcome{seq: j.seq, rows: rows}
}

// write emits rows in input order, flushing a row group every
// RowGroupSize rows
func (p *Pipeline) write(outcomes <-chan outcome, out io.Writer, result *Result) error {
	writer := parquet.NewGenericWriter[MatchRow](out)

	pending := make(map[int64]outcome)
	var next int64
	buffered := 0

	for o := range outcomes {
		pending[o.seq] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			result.TotalRecords++
			if ready.invalid {
				result.Invalid++
				continue
			}
			result.Processed++
			if len(ready.rows) == 0 {
				continue
			}

			if _, err := writer.Write(ready.rows); err != nil {
				return fmt.Errorf("failed to write match rows: %w", err)
			}
			result.Matches += int64(len(ready.rows))
			buffered += len(ready.rows)

			if buffered >= p.config.RowGroupSize {
				if err := writer.Flush(); err != nil {
					return fmt.Errorf("failed to flush row group: %w", err)
				}
				buffered = 0
			}
		}

		if result.TotalRecords > 0 && result.TotalRecords%10000 == 0 {
			p.logger.Info("Processing progress",
				zap.Int64("records_processed", result.TotalRecords),
				zap.Int64("matches", result.Matches))
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func (p *Pipeline) read(format FileFormat, in io.Reader, emit func(Record) error, fail func(error)) error {
	switch format {
	case FormatCSV:
		return readCSV(in, emit, fail)
	case FormatJSONL:
		return readJSONL(in, emit, fail)
	case FormatParquet:
		ra, ok := in.(io.ReaderAt)
		if !ok {
			return errors.New("parquet input must support random access")
		}
		return readParquet(ra, emit)
	default:
		return fmt.Errorf("unsupported file format: %s", format)
	}
}

// readCSV reads a CSV file with a header row naming the id, locale and text
// columns. Only text is required.
func readCSV(in io.Reader, emit func(Record) error, fail func(error)) error {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{"id": -1, "locale": -1, "text": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	if cols["text"] < 0 {
		return fmt.Errorf("CSV header has no text column: %v", header)
	}

	field := func(row []string, name string) string {
		if i := cols[name]; i >= 0 && i < len(row) {
			return row[i]
		}
		return ""
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				fail(err)
				continue
			}
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		rec := Record{
			ID:     strings.TrimSpace(field(row, "id")),
			Locale: strings.TrimSpace(field(row, "locale")),
			Text:   field(row, "text"),
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

// readJSONL reads one JSON object per line. Blank lines are skipped.
func readJSONL(in io.Reader, emit func(Record) error, fail func(error)) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := strings.TrimSpace(scanner.Text())
		if data == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			fail(fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read JSON lines: %w", err)
	}
	return nil
}

func readParquet(in io.ReaderAt, emit func(Record) error) (err error) {
	// The reader panics on inputs it cannot size or decode
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to open parquet input: %v", r)
		}
	}()

	reader := parquet.NewGenericReader[Record](in)
	defer reader.Close()

	buf := make([]Record, 256)
	for {
		n, err := reader.Read(buf)
		for _, rec := range buf[:n] {
			if emitErr := emit(rec); emitErr != nil {
				return emitErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read parquet records: %w", err)
		}
	}
}
