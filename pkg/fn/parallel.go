package fn

import "sync"

// ParMapResult applies f with at most workers goroutines, returning Results
// in input order. workers <= 0 means one goroutine per item.
func ParMapResult[T, U any](items []T, workers int, f func(T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if workers <= 0 {
		workers = len(items)
	}
	if workers == 0 {
		return out
	}
	if workers == 1 {
		for i, v := range items {
			out[i] = f(v)
		}
		return out
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(v)
		}(i, v)
	}
	wg.Wait()
	return out
}
