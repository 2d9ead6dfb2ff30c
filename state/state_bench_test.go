package state

import (
	"testing"
)

// BenchmarkStore_Replace benchmarks swapping in a new snapshot
func BenchmarkStore_Replace(b *testing.B) {
	s := NewStore()
	records := makeRecords("bench", 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Replace("bench", records)
	}
}

// BenchmarkStore_Current benchmarks concurrent snapshot reads
func BenchmarkStore_Current(b *testing.B) {
	s := NewStore()
	s.Replace("bench", makeRecords("bench", 1000))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = s.Current().Count()
		}
	})
}
