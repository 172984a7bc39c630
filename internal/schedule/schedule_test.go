package schedule

import (
	"testing"
	"time"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     Kind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: KindCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: KindCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: KindCron, source: "cron"},
		{name: "duration", raw: "10m", kind: KindInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: KindInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: KindInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == KindInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "cron:", "interval:-5m", "0s"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 6, 1, 12, 7, 0, 0, time.UTC)

	sp, err := Parse("15m")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := sp.Next(base); got != base.Add(15*time.Minute) {
		t.Fatalf("interval Next = %v", got)
	}

	sp, err = Parse("0 * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if got := sp.Next(base); !got.Equal(want) {
		t.Fatalf("cron Next = %v, want %v", got, want)
	}
}
