package qc

import (
	"errors"
	"testing"
)

func dates(ss ...string) []Date {
	out := make([]Date, 0, len(ss))
	for _, s := range ss {
		out = append(out, MustDate(s))
	}
	return out
}

func equalDates(a, b []Date) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func TestGenerateScenarios(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		freq    Frequency
		start   string
		horizon string
		skip    bool
		want    []Date
	}{
		{
			name: "daily skips weekend", freq: Daily, start: "2025-07-31", horizon: "2025-08-04", skip: true,
			want: dates("2025-07-31", "2025-08-01", "2025-08-04"),
		},
		{
			name: "daily keeps weekend without policy", freq: Daily, start: "2025-07-31", horizon: "2025-08-04",
			want: dates("2025-07-31", "2025-08-01", "2025-08-02", "2025-08-03", "2025-08-04"),
		},
		{
			name: "daily starting on saturday", freq: Daily, start: "2025-08-02", horizon: "2025-08-05", skip: true,
			want: dates("2025-08-04", "2025-08-05"),
		},
		{
			name: "monthly mid-month start moves to next 1st", freq: Monthly, start: "2025-07-19", horizon: "2025-10-01",
			want: dates("2025-08-01", "2025-09-01", "2025-10-01"),
		},
		{
			name: "monthly start on the 1st is kept", freq: Monthly, start: "2025-07-01", horizon: "2025-08-15",
			want: dates("2025-07-01", "2025-08-01"),
		},
		{
			name: "weekly wednesday start moves to monday", freq: Weekly, start: "2025-07-30", horizon: "2025-08-18",
			want: dates("2025-08-04", "2025-08-11", "2025-08-18"),
		},
		{
			name: "weekly monday start is kept", freq: Weekly, start: "2025-08-04", horizon: "2025-08-10",
			want: dates("2025-08-04"),
		},
		{
			name: "weekly ignores weekend policy", freq: Weekly, start: "2025-08-04", horizon: "2025-08-11", skip: true,
			want: dates("2025-08-04", "2025-08-11"),
		},
		{
			name: "quarterly", freq: Quarterly, start: "2025-02-15", horizon: "2026-01-01",
			want: dates("2025-04-01", "2025-07-01", "2025-10-01", "2026-01-01"),
		},
		{
			name: "annual from jan 1st", freq: Annual, start: "2024-01-01", horizon: "2026-06-01",
			want: dates("2024-01-01", "2025-01-01", "2026-01-01"),
		},
		{
			name: "annual mid-year start", freq: Annual, start: "2024-03-10", horizon: "2026-06-01",
			want: dates("2025-01-01", "2026-01-01"),
		},
		{
			name: "horizon before start", freq: Daily, start: "2025-08-10", horizon: "2025-08-01",
			want: []Date{},
		},
		{
			name: "horizon before first boundary", freq: Monthly, start: "2025-08-10", horizon: "2025-08-31",
			want: []Date{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Generate(tt.freq, MustDate(tt.start), MustDate(tt.horizon), GenerateOptions{SkipWeekends: tt.skip})
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if got == nil {
				t.Fatal("Generate returned nil slice, want non-nil")
			}
			if !equalDates(got, tt.want) {
				t.Fatalf("Generate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := Generate(Frequency(0), MustDate("2025-01-01"), MustDate("2025-02-01"), GenerateOptions{})
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("err = %v, want ErrInvalidFrequency", err)
	}
	if !IsInputError(err) {
		t.Fatalf("err = %T, want *InputError", err)
	}

	_, err = Generate(Weekly, Date{}, MustDate("2025-02-01"), GenerateOptions{})
	if !errors.Is(err, ErrInvalidStartDate) {
		t.Fatalf("err = %v, want ErrInvalidStartDate", err)
	}
}

func TestGenerateProperties(t *testing.T) {
	t.Parallel()
	starts := dates("2023-02-28", "2024-02-29", "2024-12-31", "2025-03-05", "2025-06-01")
	horizons := dates("2024-01-01", "2024-07-15", "2025-03-31", "2025-12-31", "2026-04-02")

	for _, f := range Frequencies {
		for _, skip := range []bool{false, true} {
			opt := GenerateOptions{SkipWeekends: skip}
			for _, s := range starts {
				var prev []Date
				for _, h := range horizons {
					got, err := Generate(f, s, h, opt)
					if err != nil {
						t.Fatalf("Generate(%v,%v,%v): %v", f, s, h, err)
					}
					for i := 1; i < len(got); i++ {
						if !got[i-1].Before(got[i]) {
							t.Fatalf("Generate(%v,%v,%v) not strictly ascending at %d: %v", f, s, h, i, got)
						}
					}
					if len(got) > 0 && got[0].Before(s) {
						t.Fatalf("Generate(%v,%v,%v) starts before start: %v", f, s, h, got[0])
					}
					if len(got) > 0 && got[len(got)-1].After(h) {
						t.Fatalf("Generate(%v,%v,%v) passes horizon: %v", f, s, h, got[len(got)-1])
					}
					if len(got) < len(prev) || !equalDates(got[:len(prev)], prev) {
						t.Fatalf("Generate(%v,%v,%v) does not extend previous horizon", f, s, h)
					}
					again, _ := Generate(f, s, h, opt)
					if !equalDates(got, again) {
						t.Fatalf("Generate(%v,%v,%v) not idempotent", f, s, h)
					}
					prev = got
				}
			}
		}
	}
}

func TestPeriodStart(t *testing.T) {
	t.Parallel()
	d := MustDate("2025-08-14") // Thursday
	tests := []struct {
		freq Frequency
		want string
	}{
		{Daily, "2025-08-14"},
		{Weekly, "2025-08-11"},
		{Monthly, "2025-08-01"},
		{Quarterly, "2025-07-01"},
		{Annual, "2025-01-01"},
	}
	for _, tt := range tests {
		if got := PeriodStart(tt.freq, d); got.String() != tt.want {
			t.Fatalf("PeriodStart(%v) = %s, want %s", tt.freq, got, tt.want)
		}
	}
	if got := PeriodStart(Weekly, MustDate("2025-08-17")); got.String() != "2025-08-11" {
		t.Fatalf("PeriodStart(weekly, sunday) = %s, want 2025-08-11", got)
	}
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()
	for _, f := range Frequencies {
		got, err := ParseFrequency(f.String())
		if err != nil || got != f {
			t.Fatalf("ParseFrequency(%q) = %v, %v", f.String(), got, err)
		}
	}
	if got, err := ParseFrequency("Yearly"); err != nil || got != Annual {
		t.Fatalf("ParseFrequency(Yearly) = %v, %v", got, err)
	}
	if _, err := ParseFrequency("fortnightly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("err = %v, want ErrInvalidFrequency", err)
	}
}
