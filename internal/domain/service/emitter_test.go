package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_DeliversInSubscriptionOrder(t *testing.T) {
	e := NewEmitter[int]()
	var got []string
	e.Subscribe(func(v int) { got = append(got, "first") })
	e.Subscribe(func(v int) { got = append(got, "second") })

	e.Emit(1)

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter[string]()
	var a, b []string
	unsubscribeA := e.Subscribe(func(v string) { a = append(a, v) })
	e.Subscribe(func(v string) { b = append(b, v) })

	e.Emit("x")
	unsubscribeA()
	unsubscribeA()
	e.Emit("y")

	assert.Equal(t, []string{"x"}, a)
	assert.Equal(t, []string{"x", "y"}, b)
	assert.Equal(t, 1, e.Len())
}

func TestEmitter_HandlerMayUnsubscribeDuringEmit(t *testing.T) {
	e := NewEmitter[int]()
	calls := 0
	var unsubscribe func()
	unsubscribe = e.Subscribe(func(int) {
		calls++
		unsubscribe()
	})

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, 1, calls)
	assert.Zero(t, e.Len())
}
