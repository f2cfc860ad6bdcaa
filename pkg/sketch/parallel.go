package sketch

import (
	"golang.org/x/sync/errgroup"
	"runtime"
)

const (
	// chunkAlign keeps packed chunks on disjoint words for any field width.
	chunkAlign = 64
	// parallelWork is the batch×registers product below which one goroutine wins.
	parallelWork = 1 << 18
)

// forRegisterChunks runs fn over [0, m) split into 64-aligned register ranges.
// Every register is owned by one goroutine and sees the batch in order, so the
// result is the sequential one.
func forRegisterChunks(m, batch int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 || m < 2*chunkAlign || batch*m < parallelWork {
		fn(0, m)
		return
	}
	chunk := (m + workers - 1) / workers
	chunk = (chunk + chunkAlign - 1) / chunkAlign * chunkAlign

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < m; lo += chunk {
		hi := min(lo+chunk, m)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
