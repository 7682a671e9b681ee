package symtab

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/events"
	"github.com/aclements/go-perfevent/perf"
)

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=symtab", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkTableIter[int64], genKeys[int64]))
	})
}

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=symtab", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableGetHit[string], genKeys[string]))
	})
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=symtab", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableGetMiss[string], genKeys[string]))
	})
}

func BenchmarkTableAddGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=symtab", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableAddGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableAddGrow[string], genKeys[string]))
	})
}

func BenchmarkTableAddDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=symtab", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableAddDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTableAddDelete[string], genKeys[string]))
	})
}

type benchTypes interface {
	int32 | int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) {
				withCycles(b, func() { f(b, n, genKeys) })
			})
		}
	}
}

// withCycles runs f with CPU cycle counters attached to the current
// goroutine and reports cycles/op. If the counters cannot be opened (no
// perf_event support, or insufficient privileges) f runs unmeasured.
func withCycles(b *testing.B, f func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	counters, err := perf.OpenCounter(perf.TargetThisGoroutine, events.EventCPUCycles)
	if err != nil {
		f()
		return
	}
	defer counters.Close()

	counters.Start()
	var start [1]perf.Count
	if err := counters.ReadGroup(start[:]); err != nil {
		b.Fatalf("error reading perf event: %s", err)
	}

	f()

	b.StopTimer()
	var end [1]perf.Count
	if err := counters.ReadGroup(end[:]); err != nil {
		b.Fatalf("error reading perf event: %s", err)
	}
	sc, _ := start[0].Value()
	ec, _ := end[0].Value()
	if b.N > 0 {
		b.ReportMetric(float64(ec-sc)/float64(b.N), "cpu-cycles/op")
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		var k any
		switch any(keys[i]).(type) {
		case int32:
			k = int32(start + i)
		case int64:
			k = int64(start + i)
		case string:
			k = strconv.Itoa(start + i)
		default:
			panic("not reached")
		}
		keys[i] = k.(T)
	}
	return keys
}

func newBenchTable[T benchTypes](options ...option[T, T]) *Table[T, T] {
	var zero T
	if _, ok := any(zero).(string); ok {
		typ := any(StringType[T]()).(*Type[T, T])
		return New[T, T](typ, nil, options...)
	}
	return New[T, T](nil, nil, options...)
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkTableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T]()
	defer m.Close()
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Add(k, k)
	}
	b.ResetTimer()
	var tmp T
	for i := 0; i < b.N; i++ {
		m.All(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkTableGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T]()
	defer m.Close()
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for j := range keys {
		_ = m.Add(keys[j], keys[j])
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys = genKeys(0, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkTableGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T]()
	defer m.Close()
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Add(k, k)
	}
	keys = genKeys(0, n)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkTableAddGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := newBenchTable[T]()
		for _, k := range keys {
			_ = m.Add(k, k)
		}
		m.Close()
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkTableAddDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchTable[T]()
	defer m.Close()
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Add(k, k)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		_ = m.Delete(keys[j])
		_ = m.Add(keys[j], keys[j])
	}
}
