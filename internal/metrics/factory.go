package metrics

import (
	"fmt"
	"slices"
)

// Spec is a configured metric: its type and string arguments.
type Spec struct {
	Type      string            `yaml:"type"`
	Arguments map[string]string `yaml:"arguments"`
}

const (
	TypeAvailability  = "AvailabilityMetric"
	TypeDifference    = "DifferencePBM"
	TypeCoherence     = "CoherencePBM"
	TypeTimingQuality = "TimingQualityMetric"
)

// Types returns the supported metric types.
func Types() []string {
	return []string{TypeAvailability, TypeDifference, TypeCoherence, TypeTimingQuality}
}

// New creates a metric from its configuration. Unknown types and arguments,
// as well as missing required arguments, are rejected here rather than when
// the metric runs.
func New(spec Spec, options ...func(*Options)) (Metric, error) {
	opts := newOptions(options...)

	var m Metric
	var err error

	switch spec.Type {
	case TypeAvailability:
		m, err = newAvailabilityMetric(spec.Arguments, opts)
	case TypeDifference:
		m, err = newDifferencePBM(spec.Arguments, opts)
	case TypeCoherence:
		m, err = newCoherencePBM(spec.Arguments, opts)
	case TypeTimingQuality:
		m, err = newTimingQualityMetric(spec.Arguments, opts)
	default:
		return nil, fmt.Errorf("%w: '%s', expected one of %v", ErrUnknownMetric, spec.Type, Types())
	}
	if err != nil {
		return nil, fmt.Errorf("configuring %s: %w", spec.Type, err)
	}

	return m, nil
}

// SupportsMetadataOnly reports whether the metric can run on a day without
// data, i.e. whether its value is defined by metadata presence alone.
func SupportsMetadataOnly(m Metric) bool {
	mo, ok := m.(interface{ MetadataOnly() bool })
	return ok && mo.MetadataOnly()
}

// IsKnownType reports whether t is a supported metric type.
func IsKnownType(t string) bool {
	return slices.Contains(Types(), t)
}
