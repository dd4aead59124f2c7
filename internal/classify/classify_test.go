package classify

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		want  Category
	}{
		{"Senior Engineering Manager", Leadership},
		{"Lead Data Scientist", Leadership},
		{"Principal ML Engineer", Leadership},
		{"Head of Data", Leadership},
		{"Director of Analytics", Leadership},
		{"Senior Data Analyst", SeniorIC},
		{"SENIOR DATA ENGINEER", SeniorIC},
		{"Data Analyst", IndividualContributor},
		{"", IndividualContributor},
		// substring containment, not word match
		{"Team Leader", Leadership},
	}
	for _, tc := range tests {
		if got := Classify(tc.title); got != tc.want {
			t.Errorf("Classify(%q)=%q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestClassifyValue_NonString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want Category
	}{
		{"nil", nil, IndividualContributor},
		{"int", 42, IndividualContributor},
		{"bytes", []byte("Senior Scientist"), SeniorIC},
		{"float", 3.5, IndividualContributor},
	}
	for _, tc := range tests {
		if got := ClassifyValue(tc.in); got != tc.want {
			t.Errorf("%s: ClassifyValue(%v)=%q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		if got := Classify("Senior Engineering Manager"); got != Leadership {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}
