// Package seed turns the raw SEED files recorded by a station for one day
// into channel keyed sample runs, timing quality flags and calibration events.
package seed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/seedscan/internal/progress"
	"github.com/roman-kulish/seedscan/internal/station"
)

// FileSuffix is the suffix of the files which are handed to the splitter.
const FileSuffix = ".seed"

// SampleRun is a contiguous block of samples recorded at one rate.
type SampleRun struct {
	Start      time.Time // Time of the first sample
	SampleRate float64   // Samples per second
	Samples    []float64 // Decoded sample values in counts

	digestOnce sync.Once
	digest     []byte
}

// NewSampleRun creates a new SampleRun.
func NewSampleRun(start time.Time, sampleRate float64, samples []float64) *SampleRun {
	return &SampleRun{Start: start, SampleRate: sampleRate, Samples: samples}
}

// End returns the time just past the last sample of the run.
func (r *SampleRun) End() time.Time {
	if r.SampleRate <= 0 {
		return r.Start
	}
	return r.Start.Add(time.Duration(float64(len(r.Samples)) / r.SampleRate * float64(time.Second)))
}

// Digest returns the SHA-256 over start time, sample rate and sample values.
// It is computed once; a run must not be modified after the first call.
func (r *SampleRun) Digest() []byte {
	r.digestOnce.Do(func() {
		h := sha256.New()
		var buf [8]byte

		binary.BigEndian.PutUint64(buf[:], uint64(r.Start.UnixNano()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.SampleRate))
		h.Write(buf[:])
		for _, s := range r.Samples {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(s))
			h.Write(buf[:])
		}

		r.digest = h.Sum(nil)
	})
	return r.digest
}

// CalibrationEvent is a calibration signal injected into a channel, as
// announced by a step (300), sine (310) or pseudo-random (320) blockette.
type CalibrationEvent struct {
	Type     int
	Start    time.Time
	Duration time.Duration
}

// Tables holds everything decoded from the files of one station day. All
// tables are keyed by the channel key (see Key).
type Tables struct {
	Data         map[string][]*SampleRun
	Quality      map[string][]int
	Calibrations map[string][]CalibrationEvent
}

// NewTables creates empty tables.
func NewTables() *Tables {
	return &Tables{
		Data:         make(map[string][]*SampleRun),
		Quality:      make(map[string][]int),
		Calibrations: make(map[string][]CalibrationEvent),
	}
}

// Key builds the channel key used by the tables, e.g. "IU_ANMO 00-LHZ (1.0 Hz)".
func Key(st station.Station, ch station.Channel, sampleRate float64) string {
	return fmt.Sprintf("%s %s (%s Hz)", st, ch, strconv.FormatFloat(sampleRate, 'f', 1, 64))
}

// ParseKey splits a channel key into its station and channel parts.
func ParseKey(key string) (station.Station, station.Channel, bool) {
	stPart, rest, ok := strings.Cut(key, " ")
	if !ok {
		return station.Station{}, station.Channel{}, false
	}
	chPart, _, _ := strings.Cut(rest, " ")

	st, err := station.Parse(stPart)
	if err != nil {
		return station.Station{}, station.Channel{}, false
	}
	ch, err := station.ParseChannel(chPart)
	if err != nil {
		return station.Station{}, station.Channel{}, false
	}
	return st, ch, true
}

// Retain drops every entry of the tables whose key is not accepted by keep.
func (t *Tables) Retain(keep func(station.Station, station.Channel) bool) {
	for key := range t.Data {
		st, ch, ok := ParseKey(key)
		if ok && keep(st, ch) {
			continue
		}
		delete(t.Data, key)
		delete(t.Quality, key)
		delete(t.Calibrations, key)
	}
}

// Empty returns true if the tables hold no sample data.
func (t *Tables) Empty() bool {
	return t == nil || len(t.Data) == 0
}

// Progress reports how far the splitter got with the files of a station day.
type Progress struct {
	File       string // File being decoded
	FileIndex  int    // Index of the file in the batch
	FileCount  int    // Number of files in the batch
	Bytes      int64  // Bytes decoded so far in the batch
	TotalBytes int64  // Bytes in the batch
	Records    int    // Records decoded so far in the batch
}

// Splitter decodes the raw files of one station day. It blocks until all
// files are decoded, reporting progress into the queue as it goes.
type Splitter interface {
	Split(ctx context.Context, files []string, progress *progress.FallOffQueue[Progress]) (*Tables, error)
}

// ListFiles returns the sorted list of non-empty SEED files in dir.
func ListFiles(dir string) ([]string, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("'%s' is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory '%s': %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), FileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(files)
	return files, nil
}
