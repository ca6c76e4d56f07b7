package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	v, err := Ok(42).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	e := Err[int](errors.New("fail"))
	assert.True(t, e.IsErr())
	assert.False(t, e.IsOk())

	_, err = e.Unwrap()
	assert.EqualError(t, err, "fail")

	assert.True(t, FromPair(1, nil).IsOk())
	assert.True(t, FromPair(0, errors.New("x")).IsErr())
}

func TestCollectReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	r := Collect([]Result[int]{Ok(1), Err[int](first), Err[int](errors.New("second"))})
	_, err := r.Unwrap()
	assert.ErrorIs(t, err, first)

	vals, err := Collect([]Result[int]{Ok(1), Ok(2)}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, vals)
}

func TestSliceHelpers(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	assert.Equal(t, []int{2, 4}, Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 }))
	assert.Nil(t, Filter([]int{1}, func(int) bool { return false }))
	assert.Equal(t, []int{1, 1, 2, 2}, FlatMap([]int{1, 2}, func(n int) []int { return []int{n, n} }))
	assert.Equal(t, [][]int{{1, 2}, {3}}, Chunk([]int{1, 2, 3}, 2))
	assert.Nil(t, Chunk([]int{1}, 0))
}

func TestThenShortCircuits(t *testing.T) {
	var called bool
	fail := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("boom")) })
	next := Stage[int, string](func(context.Context, int) Result[string] {
		called = true
		return Ok("x")
	})

	_, err := Then(fail, next)(context.Background(), 1).Unwrap()
	assert.EqualError(t, err, "boom")
	assert.False(t, called)

	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	str := Stage[int, string](func(_ context.Context, n int) Result[string] { return Ok(strconv.Itoa(n)) })
	s, err := Then(double, str)(context.Background(), 21).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "42", s)
}

func TestTracedStage(t *testing.T) {
	ok := TracedStage("ok", Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n) }))
	v, err := ok(context.Background(), 7).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	failing := TracedStage("fail", Stage[int, int](func(context.Context, int) Result[int] {
		return Err[int](errors.New("traced failure"))
	}))
	_, err = failing(context.Background(), 1).Unwrap()
	assert.EqualError(t, err, "traced failure")
}

func TestParMapResultPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var inflight, peak atomic.Int32
	out := ParMapResult(items, 3, func(n int) Result[int] {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		defer inflight.Add(-1)
		return Ok(n * 10)
	})
	vals, err := Collect(out).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80}, vals)
	assert.LessOrEqual(t, peak.Load(), int32(3))

	assert.Empty(t, ParMapResult([]int{}, 0, func(n int) Result[int] { return Ok(n) }))
	assert.Len(t, ParMapResult([]int{1, 2}, 1, func(n int) Result[int] { return Ok(n) }), 2)
}
