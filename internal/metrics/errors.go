package metrics

import (
	"errors"
	"fmt"
)

var (
	// ErrMetadataAbsent is returned when a channel has no metadata for the day.
	ErrMetadataAbsent = errors.New("channel metadata absent")

	// ErrDataAbsent is returned when a channel has no sample data for the day.
	ErrDataAbsent = errors.New("channel data absent")

	// ErrMissingArgument is returned for a declared argument that was not configured.
	ErrMissingArgument = errors.New("missing argument")

	// ErrUnknownArgument is returned for an argument the metric does not declare.
	ErrUnknownArgument = errors.New("unknown argument")

	// ErrInconsistentSpectra is returned when spectra of a channel pair differ
	// in frequency spacing or length.
	ErrInconsistentSpectra = errors.New("inconsistent spectra")

	// ErrSampleRateMismatch is returned when two channels compared against each
	// other were recorded at different rates.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")

	// ErrEmptyBand is returned when no spectral period falls inside the power band.
	ErrEmptyBand = errors.New("power band contains no periods")

	// ErrBandOutOfRange is returned when the power band reaches past the
	// shortest or longest period of the spectrum. It matches ErrEmptyBand.
	ErrBandOutOfRange = fmt.Errorf("power band outside the spectrum periods: %w", ErrEmptyBand)

	// ErrUnknownMetric is returned for metric types outside the supported set.
	ErrUnknownMetric = errors.New("unknown metric")
)
