package seed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roman-kulish/seedscan/internal/station"
)

const (
	fixedHeaderSize = 48

	EncodingInt16   uint8 = 1
	EncodingInt32   uint8 = 3
	EncodingFloat32 uint8 = 4
	EncodingFloat64 uint8 = 5
	EncodingSteim1  uint8 = 10

	blocketteStepCal   = 300
	blocketteSineCal   = 310
	blocketteRandomCal = 320
	blocketteDataOnly  = 1000
	blocketteDataExt   = 1001

	// activity flag bit telling that the time correction was already applied
	timeCorrectionApplied = 0x02
)

var (
	// ErrNotDataRecord is returned for records which carry no waveform data,
	// e.g. control headers of full SEED volumes.
	ErrNotDataRecord = errors.New("not a data record")

	// ErrUnsupportedEncoding is returned for data encodings the decoder does not handle.
	ErrUnsupportedEncoding = errors.New("unsupported data encoding")

	// ErrMissingBlockette1000 is returned for data records without a data only blockette.
	ErrMissingBlockette1000 = errors.New("missing blockette 1000")
)

// record is a single decoded miniSEED data record.
type record struct {
	station       station.Station
	channel       station.Channel
	quality       byte
	start         time.Time
	sampleRate    float64
	numSamples    int
	encoding      uint8
	dataOrder     binary.ByteOrder
	length        int
	timingQuality int // -1 if the record has no blockette 1001
	calibrations  []CalibrationEvent
	payload       []byte
}

// parseRecord decodes the fixed header and the blockettes of the record at the
// start of buf. The payload is kept undecoded until samples are requested.
func parseRecord(buf []byte) (*record, error) {
	if len(buf) < fixedHeaderSize {
		return nil, fmt.Errorf("short record: %d bytes", len(buf))
	}

	switch buf[6] {
	case 'D', 'R', 'Q', 'M':
	default:
		return nil, ErrNotDataRecord
	}

	order := headerByteOrder(buf)

	r := &record{
		station: station.New(
			strings.TrimSpace(string(buf[18:20])),
			strings.TrimSpace(string(buf[8:13])),
		),
		channel: station.NewChannel(
			strings.TrimSpace(string(buf[13:15])),
			strings.TrimSpace(string(buf[15:18])),
		),
		quality:       buf[6],
		start:         parseBTime(buf[20:30], order),
		numSamples:    int(order.Uint16(buf[30:32])),
		sampleRate:    sampleRate(int16(order.Uint16(buf[32:34])), int16(order.Uint16(buf[34:36]))),
		timingQuality: -1,
	}

	if buf[36]&timeCorrectionApplied == 0 {
		correction := int32(order.Uint32(buf[40:44]))
		r.start = r.start.Add(time.Duration(correction) * 100 * time.Microsecond)
	}

	dataOffset := int(order.Uint16(buf[44:46]))
	next := int(order.Uint16(buf[46:48]))

	var haveB1000 bool
	for next != 0 {
		if next+4 > len(buf) {
			return nil, fmt.Errorf("blockette offset %d beyond record", next)
		}

		b := buf[next:]
		blocketteType := order.Uint16(b[0:2])

		switch blocketteType {
		case blocketteDataOnly:
			if len(b) < 8 {
				return nil, fmt.Errorf("short blockette 1000")
			}
			haveB1000 = true
			r.encoding = b[4]
			r.dataOrder = binary.LittleEndian
			if b[5] == 1 {
				r.dataOrder = binary.BigEndian
			}
			r.length = 1 << b[6]

		case blocketteDataExt:
			if len(b) < 8 {
				return nil, fmt.Errorf("short blockette 1001")
			}
			r.timingQuality = int(b[4])

		case blocketteStepCal, blocketteSineCal, blocketteRandomCal:
			if len(b) < 20 {
				return nil, fmt.Errorf("short blockette %d", blocketteType)
			}
			r.calibrations = append(r.calibrations, CalibrationEvent{
				Type:     int(blocketteType),
				Start:    parseBTime(b[4:14], order),
				Duration: time.Duration(order.Uint32(b[16:20])) * 100 * time.Microsecond,
			})
		}

		following := int(order.Uint16(b[2:4]))
		if following != 0 && following <= next {
			return nil, fmt.Errorf("blockette chain loops at offset %d", next)
		}
		next = following
	}

	if !haveB1000 {
		return nil, ErrMissingBlockette1000
	}
	if r.length < fixedHeaderSize || r.length > len(buf) {
		return nil, fmt.Errorf("invalid record length %d", r.length)
	}
	if dataOffset > 0 && dataOffset <= r.length {
		r.payload = buf[dataOffset:r.length]
	}

	return r, nil
}

// samples decodes the payload of the record.
func (r *record) samples() ([]float64, error) {
	if r.numSamples == 0 {
		return nil, nil
	}

	order := r.dataOrder
	p := r.payload
	out := make([]float64, r.numSamples)

	need := func(size int) error {
		if len(p) < r.numSamples*size {
			return fmt.Errorf("payload of %d bytes too short for %d samples", len(p), r.numSamples)
		}
		return nil
	}

	switch r.encoding {
	case EncodingInt16:
		if err := need(2); err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = float64(int16(order.Uint16(p[i*2:])))
		}

	case EncodingInt32:
		if err := need(4); err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = float64(int32(order.Uint32(p[i*4:])))
		}

	case EncodingFloat32:
		if err := need(4); err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(p[i*4:])))
		}

	case EncodingFloat64:
		if err := need(8); err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(p[i*8:]))
		}

	case EncodingSteim1:
		values, err := decodeSteim1(p, r.numSamples, order)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			out[i] = float64(v)
		}

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEncoding, r.encoding)
	}

	return out, nil
}

// headerByteOrder guesses the byte order of the fixed header from the year
// field, which must be a plausible year in the correct order.
func headerByteOrder(buf []byte) binary.ByteOrder {
	year := binary.BigEndian.Uint16(buf[20:22])
	if year >= 1900 && year <= 2100 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func parseBTime(b []byte, order binary.ByteOrder) time.Time {
	year := int(order.Uint16(b[0:2]))
	doy := int(order.Uint16(b[2:4]))
	fract := int(order.Uint16(b[8:10]))

	return time.Date(year, time.January, 1, int(b[4]), int(b[5]), int(b[6]), fract*100_000, time.UTC).
		AddDate(0, 0, doy-1)
}

// sampleRate computes the nominal sample rate from the header factor and
// multiplier as defined by the SEED manual.
func sampleRate(factor, multiplier int16) float64 {
	f, m := float64(factor), float64(multiplier)

	switch {
	case factor == 0:
		return 0
	case factor > 0 && multiplier > 0:
		return f * m
	case factor > 0 && multiplier < 0:
		return -f / m
	case factor < 0 && multiplier > 0:
		return -m / f
	case factor < 0 && multiplier < 0:
		return 1 / (f * m)
	default:
		return f
	}
}

// decodeSteim1 decodes n samples from Steim-1 compressed frames.
func decodeSteim1(p []byte, n int, order binary.ByteOrder) ([]int32, error) {
	const frameSize = 64

	diffs := make([]int32, 0, n)
	var x0, xn int32

	for f := 0; f*frameSize+frameSize <= len(p) && len(diffs) < n; f++ {
		frame := p[f*frameSize : (f+1)*frameSize]
		ctrl := order.Uint32(frame[0:4])

		for w := 1; w < 16; w++ {
			word := frame[w*4 : w*4+4]
			code := (ctrl >> (30 - 2*uint(w))) & 0x03

			if f == 0 && w == 1 {
				x0 = int32(order.Uint32(word))
				continue
			}
			if f == 0 && w == 2 {
				xn = int32(order.Uint32(word))
				continue
			}

			switch code {
			case 1:
				for _, b := range word {
					diffs = append(diffs, int32(int8(b)))
				}
			case 2:
				diffs = append(diffs, int32(int16(order.Uint16(word[0:2]))), int32(int16(order.Uint16(word[2:4]))))
			case 3:
				diffs = append(diffs, int32(order.Uint32(word)))
			}
		}
	}

	if len(diffs) < n {
		return nil, fmt.Errorf("steim1: %d differences for %d samples", len(diffs), n)
	}

	out := make([]int32, n)
	out[0] = x0
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + diffs[i]
	}

	if out[n-1] != xn {
		return nil, fmt.Errorf("steim1: last sample %d does not match reverse integration constant %d", out[n-1], xn)
	}
	return out, nil
}
