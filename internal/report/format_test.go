package report

import (
	"math"
	"testing"
)

func TestMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{120000, "$120,000"},
		{95432.6, "$95,433"},
		{0, "$0"},
		{-5.4, "-$5"},
		{math.NaN(), Missing},
		{math.Inf(1), Missing},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumberAndPercent(t *testing.T) {
	t.Parallel()

	if got := Number(1234567); got != "1,234,567" {
		t.Fatalf("Number=%q", got)
	}
	if got := Percent(12.345); got != "12.3%" {
		t.Fatalf("Percent=%q", got)
	}
}

func TestCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		column string
		in     any
		want   string
	}{
		{"avg salary int", "avg_salary", int64(120000), "$120,000"},
		{"avg salary float", "avg_salary", 99999.5, "$100,000"},
		{"usd salary", "salary_in_usd", int64(60000), "$60,000"},
		{"local salary is not money", "salary", int64(60000), "60,000"},
		{"count", "job_count", int64(1200), "1,200"},
		{"year", "work_year", int64(2024), "2024"},
		{"year as float", "work_year", 2023.0, "2023"},
		{"plain int", "job_count", 7, "7"},
		{"ratio", "share", 1.5, "1.50"},
		{"text", "job_title", "Data Scientist", "Data Scientist"},
		{"bytes", "job_title", []byte("ML Engineer"), "ML Engineer"},
		{"null", "avg_salary", nil, Missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Cell(tt.column, tt.in); got != tt.want {
				t.Fatalf("Cell(%q, %v)=%q, want %q", tt.column, tt.in, got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"avg_salary":       "Avg Salary",
		"job_count":        "Job Count",
		"experience":       "Experience",
		"company_location": "Company Location",
		"a__b":             "A  B",
	}
	for in, want := range tests {
		if got := Header(in); got != want {
			t.Errorf("Header(%q)=%q, want %q", in, got, want)
		}
	}
}
