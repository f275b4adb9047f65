package metrics

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

const (
	argForceUpdate = "force-update"
	argMakePlots   = "makeplots"
	argLowerLimit  = "lower-limit"
	argUpperLimit  = "upper-limit"
	argBaseChannel = "base-channel"
)

// Arguments are the configured string arguments of a metric, restricted to
// the names the metric declares.
type Arguments struct {
	declared map[string]struct{}
	values   map[string]string
}

// newArguments checks values against the declared names. Every metric
// declares force-update and makeplots.
func newArguments(values map[string]string, declared ...string) (*Arguments, error) {
	a := &Arguments{
		declared: make(map[string]struct{}),
		values:   make(map[string]string, len(values)),
	}
	for _, name := range append([]string{argForceUpdate, argMakePlots}, declared...) {
		a.declared[name] = struct{}{}
	}

	for _, name := range slices.Sorted(maps.Keys(values)) {
		if _, ok := a.declared[name]; !ok {
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownArgument, name)
		}
		a.values[name] = strings.TrimSpace(values[name])
	}

	return a, nil
}

// Get returns the value of a declared argument. A declared argument which was
// not configured yields ErrMissingArgument, for the caller to apply a default.
func (a *Arguments) Get(name string) (string, error) {
	if _, ok := a.declared[name]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownArgument, name)
	}
	v, ok := a.values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: '%s'", ErrMissingArgument, name)
	}
	return v, nil
}

// Bool returns a boolean argument, false when absent.
func (a *Arguments) Bool(name string) (bool, error) {
	v, err := a.Get(name)
	if errors.Is(err, ErrMissingArgument) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("argument '%s': %w", name, err)
	}
	return b, nil
}

// Float returns a numeric argument.
func (a *Arguments) Float(name string) (float64, error) {
	v, err := a.Get(name)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("argument '%s': %w", name, err)
	}
	return f, nil
}
