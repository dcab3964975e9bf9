package fiber

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeferred_SettlesOnce(t *testing.T) {
	d := NewDeferred()
	assert.False(t, d.Settled())

	assert.True(t, d.Resolve(1))
	assert.False(t, d.Resolve(2))
	assert.False(t, d.Reject(errors.New("late")))

	v, err := d.Result()
	assert.Equal(t, 1, v)
	assert.NoError(t, err)
}

func TestDeferred_RejectNil(t *testing.T) {
	d := Rejected(nil)
	_, err := d.Result()
	assert.Error(t, err)
}

func TestDeferred_Subscribe(t *testing.T) {
	d := NewDeferred()
	var got []any
	d.subscribe(func(v any, err error) { got = append(got, v) })
	unsubscribe := d.subscribe(func(v any, err error) { got = append(got, "removed") })
	unsubscribe()

	d.Resolve("v")
	assert.Equal(t, []any{"v"}, got)
}
