package imapc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressStack_UpdateReportsAtOutermostScale(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Update(50)
	assert.Equal(t, []int{50}, got)
}

func TestProgressStack_PushRemapsIntoParentWindow(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Push(50, 100) // nested window occupies the top half of the outer 0-100 range
	p.Update(0)
	p.Update(50)
	p.Update(100)
	assert.Equal(t, []int{50, 75, 100}, got)
}

func TestProgressStack_NestedPushesCompoundTheRemap(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Push(0, 50)  // outer: 0-50
	p.Push(0, 50)  // inner, scaled into 0-50: ends up 0-25
	p.Update(100)
	assert.Equal(t, []int{25}, got)
}

func TestProgressStack_UpdateIsMonotonicWithinFrame(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Update(60)
	p.Update(40) // stale, must not regress the reported value
	p.Update(80)
	assert.Equal(t, []int{60, 80}, got)
}

func TestProgressStack_ZeroResetsHighWaterMark(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Update(80)
	p.Update(0) // a sub-operation restarting from scratch
	p.Update(30)
	assert.Equal(t, []int{80, 0, 30}, got)
}

func TestProgressStack_DoneOnlyReportsAtOutermostFrame(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Push(0, 50)
	p.Done() // nested frame: must not claim the whole operation finished
	assert.Empty(t, got)
	p.Pop()
	p.Done()
	assert.Equal(t, []int{100}, got)
}

func TestProgressStack_PopRestoresEnclosingFrame(t *testing.T) {
	var got []int
	p := newProgressStack(func(pct int) bool { got = append(got, pct); return true })
	p.Push(0, 50)
	p.Pop()
	p.Update(100)
	assert.Equal(t, []int{100}, got)
}
