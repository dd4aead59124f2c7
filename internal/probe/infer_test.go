package probe

import "testing"

func TestInference_Label(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"no values", nil, TypeText},
		{"integers", []string{"2021", "2022"}, TypeInteger},
		{"dollar amounts", []string{"$120,000", "95000"}, TypeInteger},
		{"floats", []string{"1.5", "2"}, TypeFloat},
		{"booleans", []string{"yes", "No", "true"}, TypeBoolean},
		{"dates", []string{"2023-01-02", "2023-12-31"}, TypeDate},
		{"timestamps", []string{"2023-01-02 10:00:00", "2023-01-02T11:30:00"}, TypeTimestamp},
		{"mixed falls back to text", []string{"12", "twelve"}, TypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := newInference()
			for _, v := range tt.values {
				in.observe(v)
			}
			if got := in.label(); got != tt.want {
				t.Fatalf("label(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestCoerceType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		TypeInteger:   "int",
		TypeFloat:     "float",
		TypeBoolean:   "text",
		TypeDate:      "text",
		TypeTimestamp: "text",
		TypeText:      "text",
		"weird":       "text",
	}
	for in, want := range tests {
		if got := coerceType(in); got != want {
			t.Errorf("coerceType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseBoolLoose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{" YES ", true, true},
		{"f", false, true},
		{"n", false, true},
		{"1", false, false},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		got, ok := parseBoolLoose(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseBoolLoose(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
