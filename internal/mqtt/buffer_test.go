package mqtt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferFIFO(t *testing.T) {
	r := newRingBuffer(4)
	for i := 0; i < 3; i++ {
		r.push(bufferedMsg{topic: fmt.Sprintf("t%d", i)})
	}
	require.Equal(t, 3, r.len())

	drained := r.drainAll()
	require.Len(t, drained, 3)
	for i, m := range drained {
		assert.Equal(t, fmt.Sprintf("t%d", i), m.topic)
	}
	assert.Equal(t, 0, r.len())
	assert.Nil(t, r.drainAll())
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.push(bufferedMsg{topic: fmt.Sprintf("t%d", i)})
	}
	require.Equal(t, 3, r.len())

	drained := r.drainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "t2", drained[0].topic)
	assert.Equal(t, "t4", drained[2].topic)
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	r := newRingBuffer(2)
	r.push(bufferedMsg{topic: "a"})
	r.drainAll()

	r.push(bufferedMsg{topic: "b"})
	r.push(bufferedMsg{topic: "c"})
	drained := r.drainAll()
	require.Len(t, drained, 2)
	assert.Equal(t, "b", drained[0].topic)
	assert.Equal(t, "c", drained[1].topic)
}
