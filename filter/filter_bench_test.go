package filter

import (
	"testing"
	"time"

	"github.com/varunsharma6956/ost-mail-searcher/model"
)

func benchRecords(n int) []model.EmailRecord {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.EmailRecord, n)
	for i := range out {
		ts := base.Add(time.Duration(i) * time.Hour)
		if i%2 == 0 {
			out[i].Timestamp = ts.Format("2006-01-02 15:04:05")
		} else {
			out[i].Timestamp = ts.Format("2006-01-02T15:04:05Z")
		}
	}
	return out
}

// BenchmarkApply_NoBounds benchmarks the filter when no bounds are given
func BenchmarkApply_NoBounds(b *testing.B) {
	records := benchRecords(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Apply(records, "", "")
	}
}

// BenchmarkApply_Range benchmarks a filter with both bounds set
func BenchmarkApply_Range(b *testing.B) {
	records := benchRecords(1000)
	f := New(Options{Start: "2025-01-10", End: "2025-02-01T12:00:00"}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Apply(records)
	}
}

// BenchmarkParseTimestamp benchmarks the native timestamp layout
func BenchmarkParseTimestamp(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseTimestamp("2025-01-15 09:30:00.123456")
	}
}

// BenchmarkParseBound benchmarks ISO bounds with an offset
func BenchmarkParseBound(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseBound("2025-01-15T09:30:00+02:00")
	}
}
