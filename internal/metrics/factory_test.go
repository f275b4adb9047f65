package metrics

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		wantName string
		wantErr  error
	}{
		{"availability", Spec{Type: TypeAvailability}, "AvailabilityMetric", nil},
		{"timing quality", Spec{Type: TypeTimingQuality}, "TimingQualityMetric", nil},
		{"difference", bandSpec(TypeDifference, "90", "110"), "DifferencePBM:90-110", nil},
		{"coherence fractional", bandSpec(TypeCoherence, "4", "8.5"), "CoherencePBM:4-8.5", nil},
		{"unknown type", Spec{Type: "NLNMDeviationMetric"}, "", ErrUnknownMetric},
		{"unknown argument", Spec{Type: TypeAvailability, Arguments: map[string]string{"lower-limit": "1"}}, "", ErrUnknownArgument},
		{"missing band", Spec{Type: TypeDifference, Arguments: map[string]string{"lower-limit": "90"}}, "", ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if m.Name() != tt.wantName {
				t.Errorf("Expected name %s, got %s", tt.wantName, m.Name())
			}
			if m.BaseName() != tt.spec.Type {
				t.Errorf("Expected base name %s, got %s", tt.spec.Type, m.BaseName())
			}
		})
	}

	if _, err := New(Spec{Type: TypeAvailability, Arguments: map[string]string{"makeplots": "maybe"}}); err == nil {
		t.Error("Expected error for invalid boolean argument")
	}
}

func TestSupportsMetadataOnly(t *testing.T) {
	availability, _ := New(Spec{Type: TypeAvailability})
	difference, _ := New(bandSpec(TypeDifference, "90", "110"))

	if !SupportsMetadataOnly(availability) {
		t.Error("Availability should run on days without data")
	}
	if SupportsMetadataOnly(difference) {
		t.Error("Difference should not run on days without data")
	}
}

func TestArguments_Get(t *testing.T) {
	args, err := newArguments(map[string]string{"base-channel": " 10-LH "}, argBaseChannel, argLowerLimit)
	if err != nil {
		t.Fatalf("newArguments failed: %v", err)
	}

	if v, err := args.Get(argBaseChannel); err != nil || v != "10-LH" {
		t.Errorf("Expected trimmed value, got %q (%v)", v, err)
	}
	if _, err := args.Get(argLowerLimit); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
	if _, err := args.Get("nope"); !errors.Is(err, ErrUnknownArgument) {
		t.Errorf("Expected ErrUnknownArgument, got %v", err)
	}
	if v, err := args.Bool(argForceUpdate); err != nil || v {
		t.Errorf("Absent boolean should be false, got %v (%v)", v, err)
	}
}

func TestAvailabilityMetric(t *testing.T) {
	ctx := context.Background()

	t.Run("with data", func(t *testing.T) {
		channels := []testChannel{
			{channel: "00-LHZ", rate: 1, samples: 43200},
			{channel: "00-BHZ", rate: 40}, // no data
		}
		m := newTestMetric(t, Spec{Type: TypeAvailability}, nil)
		m.SetData(newTestData(t, channels, nil))
		if err := m.Process(ctx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if v, ok := m.Result().Get("00-LHZ"); !ok || math.Abs(v.Value-50) > 1e-9 {
			t.Errorf("Expected 50%% for 00-LHZ, got %v (%v)", v.Value, ok)
		}
		if v, ok := m.Result().Get("00-BHZ"); !ok || v.Value != 0 {
			t.Errorf("Expected 0%% for 00-BHZ, got %v (%v)", v.Value, ok)
		}
	})

	t.Run("metadata only", func(t *testing.T) {
		channels := []testChannel{
			{channel: "00-LHZ", rate: 1},
			{channel: "00-LH1", rate: 1},
			{channel: "00-HNZ", rate: 0.1, samples: 0},
			{channel: "00-ACE", rate: 0},
		}
		data := newTestData(t, channels, nil)
		if data.HasData() {
			t.Fatal("Test data should be metadata only")
		}

		m := newTestMetric(t, Spec{Type: TypeAvailability}, nil)
		m.SetData(data)
		if err := m.Process(ctx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		want := []string{"00-LH1", "00-LHZ"}
		ids := m.Result().IDs()
		if len(ids) != len(want) {
			t.Fatalf("Expected %v, got %v", want, ids)
		}
		for i := range want {
			v, _ := m.Result().Get(ids[i])
			if ids[i] != want[i] || v.Value != 0 || len(v.Digest) == 0 {
				t.Errorf("Unexpected result %s = %+v", ids[i], v)
			}
		}
	})
}

func TestTimingQualityMetric(t *testing.T) {
	channels := []testChannel{
		{channel: "00-LHZ", rate: 1, samples: 10, quality: []int{100, 90, 80}},
		{channel: "00-LH1", rate: 1, samples: 10},
	}

	m := newTestMetric(t, Spec{Type: TypeTimingQuality}, nil)
	m.SetData(newTestData(t, channels, nil))
	if err := m.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if m.Result().Len() != 1 {
		t.Fatalf("Expected one result, got %v", m.Result().IDs())
	}
	if v, _ := m.Result().Get("00-LHZ"); v.Value != 90 {
		t.Errorf("Expected mean timing quality 90, got %v", v.Value)
	}
}
