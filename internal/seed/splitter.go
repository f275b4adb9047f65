package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"

	"github.com/roman-kulish/seedscan/internal/progress"
)

// WithLogger sets the logger for the splitter
func WithLogger(logger *slog.Logger) func(*MiniSeedSplitter) {
	return func(s *MiniSeedSplitter) {
		s.logger = logger
	}
}

// MiniSeedSplitter decodes miniSEED data records and merges the records of
// each channel into contiguous sample runs.
type MiniSeedSplitter struct {
	logger *slog.Logger
}

// NewMiniSeedSplitter creates a new MiniSeedSplitter with a discard logger
func NewMiniSeedSplitter(options ...func(*MiniSeedSplitter)) *MiniSeedSplitter {
	s := MiniSeedSplitter{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

type pendingRecord struct {
	start      time.Time
	sampleRate float64
	samples    []float64
}

// Split decodes the given files. Records which cannot be decoded are logged
// and skipped; a file which cannot be read fails the whole batch.
func (s *MiniSeedSplitter) Split(ctx context.Context, files []string, queue *progress.FallOffQueue[Progress]) (*Tables, error) {
	var totalBytes int64
	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			totalBytes += info.Size()
		}
	}

	tables := NewTables()
	pending := make(map[string][]pendingRecord)

	var bytesRead int64
	var records int
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading '%s': %w", file, err)
		}

		n, err := s.splitFile(buf, file, tables, pending)
		if err != nil {
			return nil, fmt.Errorf("decoding '%s': %w", file, err)
		}

		bytesRead += int64(len(buf))
		records += n

		if queue != nil {
			queue.Add(Progress{
				File:       file,
				FileIndex:  i,
				FileCount:  len(files),
				Bytes:      bytesRead,
				TotalBytes: totalBytes,
				Records:    records,
			})
		}
	}

	for key, recs := range pending {
		tables.Data[key] = mergeRuns(recs)
	}

	return tables, nil
}

func (s *MiniSeedSplitter) splitFile(buf []byte, file string, tables *Tables, pending map[string][]pendingRecord) (int, error) {
	var count int

	for offset := 0; offset+fixedHeaderSize <= len(buf); {
		rec, err := parseRecord(buf[offset:])
		if err != nil {
			if errors.Is(err, ErrNotDataRecord) || errors.Is(err, ErrMissingBlockette1000) {
				// without blockette 1000 the record length is unknown, so the
				// rest of the file cannot be walked
				s.logger.Warn(fmt.Sprintf("skipping rest of file: %s", err.Error()),
					slog.String("file", file), slog.Int("offset", offset))
				return count, nil
			}
			return count, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		offset += rec.length

		key := Key(rec.station, rec.channel, rec.sampleRate)

		if rec.timingQuality >= 0 {
			tables.Quality[key] = append(tables.Quality[key], rec.timingQuality)
		}
		if len(rec.calibrations) > 0 {
			tables.Calibrations[key] = append(tables.Calibrations[key], rec.calibrations...)
		}

		samples, err := rec.samples()
		if err != nil {
			s.logger.Warn(fmt.Sprintf("skipping record: %s", err.Error()),
				slog.String("file", file), slog.String("channel", key))
			continue
		}
		if len(samples) == 0 || rec.sampleRate <= 0 {
			continue
		}

		pending[key] = append(pending[key], pendingRecord{
			start:      rec.start,
			sampleRate: rec.sampleRate,
			samples:    samples,
		})
		count++
	}

	return count, nil
}

// mergeRuns sorts the records by start time and joins records which continue
// each other within half a sample period into one run.
func mergeRuns(recs []pendingRecord) []*SampleRun {
	slices.SortStableFunc(recs, func(a, b pendingRecord) int {
		return a.start.Compare(b.start)
	})

	var runs []*SampleRun
	var current *SampleRun
	for _, rec := range recs {
		if current != nil && current.SampleRate == rec.sampleRate {
			tolerance := 0.5 / rec.sampleRate
			gap := rec.start.Sub(current.End()).Seconds()
			if math.Abs(gap) <= tolerance {
				current.Samples = append(current.Samples, rec.samples...)
				continue
			}
		}

		current = NewSampleRun(rec.start, rec.sampleRate, slices.Clone(rec.samples))
		runs = append(runs, current)
	}

	return runs
}
