package loopback_test

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/loopback"
)

func TestRingBufferWriteRead(t *testing.T) {
	rb := loopback.NewRingBuffer(16)
	assert.Equal(t, 16, rb.Cap())
	assert.Equal(t, 0, rb.Available())
	assert.Equal(t, 16, rb.Free())

	n := rb.Write([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, rb.Available())

	out := make([]byte, 10)
	n = rb.Read(out)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out[:n]))
	assert.Equal(t, 0, rb.Available())

	// Reading from an empty buffer returns nothing.
	assert.Equal(t, 0, rb.Read(out))
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := loopback.NewRingBuffer(8)
	out := make([]byte, 8)

	require.Equal(t, 6, rb.Write([]byte("abcdef")))
	require.Equal(t, 4, rb.Read(out[:4]))

	// Crosses the end of the backing slice.
	require.Equal(t, 6, rb.Write([]byte("ghijkl")))
	assert.Equal(t, 8, rb.Available())

	n := rb.Read(out)
	assert.Equal(t, 8, n)
	assert.Equal(t, "efghijkl", string(out[:n]))
}

func TestRingBufferPartialWrite(t *testing.T) {
	rb := loopback.NewRingBuffer(10)

	require.Equal(t, 7, rb.Write([]byte("0123456")))

	// Only 3 bytes are free: exactly 3 are accepted.
	n := rb.Write([]byte("789abc"))
	assert.Equal(t, 3, n)
	assert.Equal(t, 10, rb.Available())
	assert.Equal(t, 0, rb.Free())

	// A full buffer accepts nothing and does not disturb its contents.
	assert.Equal(t, 0, rb.Write([]byte("zz")))

	out := make([]byte, 10)
	require.Equal(t, 10, rb.Read(out))
	assert.Equal(t, "0123456789", string(out))

	// The caller retries the remainder later.
	assert.Equal(t, 3, rb.Write([]byte("abc")))
	n = rb.Read(out)
	assert.Equal(t, "abc", string(out[:n]))
}

func TestRingBufferNoLossUnderCapacity(t *testing.T) {
	const capacity = 65536

	rb := loopback.NewRingBuffer(capacity)
	rng := rand.New(rand.NewSource(1))

	var written []byte
	for len(written) < capacity {
		chunk := make([]byte, 1+rng.Intn(4000))
		if len(written)+len(chunk) > capacity {
			chunk = chunk[:capacity-len(written)]
		}
		rng.Read(chunk)

		require.Equal(t, len(chunk), rb.Write(chunk))
		written = append(written, chunk...)
	}

	out := make([]byte, capacity)
	require.Equal(t, capacity, rb.Read(out))
	assert.True(t, bytes.Equal(written, out), "read bytes differ from written bytes")
}

func TestRingBufferAvailableBounds(t *testing.T) {
	const capacity = 1000

	rb := loopback.NewRingBuffer(capacity)
	rng := rand.New(rand.NewSource(42))
	buf := make([]byte, 3*capacity)

	for i := 0; i < 10000; i++ {
		size := rng.Intn(len(buf))
		if rng.Intn(2) == 0 {
			free := rb.Free()
			n := rb.Write(buf[:size])
			assert.Equal(t, min(size, free), n)
		} else {
			avail := rb.Available()
			n := rb.Read(buf[:size])
			assert.Equal(t, min(size, avail), n)
		}

		avail := rb.Available()
		require.GreaterOrEqual(t, avail, 0)
		require.LessOrEqual(t, avail, capacity)
	}
}

func TestRingBufferFlush(t *testing.T) {
	rb := loopback.NewRingBuffer(32)
	rb.Write([]byte("some audio"))

	rb.Flush()
	assert.Equal(t, 0, rb.Available())

	rb.Flush()
	assert.Equal(t, 0, rb.Available())
	assert.Equal(t, 32, rb.Free())

	select {
	case <-rb.Ready():
		t.Error("Ready should be drained by Flush")
	default:
	}

	// The buffer is usable from the start again.
	rb.Write([]byte("x"))
	out := make([]byte, 4)
	assert.Equal(t, 1, rb.Read(out))
	assert.Equal(t, byte('x'), out[0])
}

func TestRingBufferReadySignal(t *testing.T) {
	rb := loopback.NewRingBuffer(4)

	select {
	case <-rb.Ready():
		t.Fatal("unexpected ready signal on an empty buffer")
	default:
	}

	rb.Write([]byte("a"))
	rb.Write([]byte("b"))

	select {
	case <-rb.Ready():
	case <-time.After(time.Second):
		t.Fatal("no ready signal after write")
	}

	// Signals are coalesced into one.
	select {
	case <-rb.Ready():
		t.Fatal("ready signals should be coalesced")
	default:
	}
}

func TestRingBufferConcurrentSPSC(t *testing.T) {
	const total = 1 << 20

	rb := loopback.NewRingBuffer(4096)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		chunk := make([]byte, 777)
		var seq byte
		sent := 0
		for sent < total {
			want := min(len(chunk), total-sent)
			for i := 0; i < want; i++ {
				chunk[i] = seq + byte(i)
			}

			off := 0
			for off < want {
				n := rb.Write(chunk[off:want])
				off += n
				if n == 0 {
					time.Sleep(time.Microsecond)
				}
			}

			seq += byte(want)
			sent += want
		}
	}()

	received := 0
	ok := true

	go func() {
		defer wg.Done()

		buf := make([]byte, 1000)
		var expect byte
		for received < total {
			avail := rb.Available()
			if avail < 0 || avail > rb.Cap() {
				ok = false
			}

			n := rb.Read(buf)
			if n == 0 {
				<-rb.Ready()

				continue
			}

			for _, b := range buf[:n] {
				if b != expect {
					ok = false
				}
				expect++
			}
			received += n
		}
	}()

	wg.Wait()
	assert.Equal(t, total, received)
	assert.True(t, ok, "consumer saw corrupted or out-of-range data")
}
