package loopback

import (
	"fmt"
	"sync/atomic"
)

// Stats counts the traffic through the two workers since the engine was created.
type Stats struct {
	BlocksRead     uint64 // Input device reads that returned data.
	BytesCaptured  uint64 // Bytes read from the input device.
	BytesForwarded uint64 // Bytes accepted by the ring buffer.
	BytesDropped   uint64 // Bytes discarded because the ring stayed full.
	BytesPlayed    uint64 // Bytes accepted by the output device.
	ReadErrors     uint64
	WriteErrors    uint64
}

// String returns a one-line summary of the counters.
func (s Stats) String() string {
	return fmt.Sprintf("blocks=%d captured=%d forwarded=%d dropped=%d played=%d read_errors=%d write_errors=%d",
		s.BlocksRead, s.BytesCaptured, s.BytesForwarded, s.BytesDropped, s.BytesPlayed, s.ReadErrors, s.WriteErrors)
}

// sub returns the counter deltas between s and an earlier snapshot.
func (s Stats) sub(prev Stats) Stats {
	return Stats{
		BlocksRead:     s.BlocksRead - prev.BlocksRead,
		BytesCaptured:  s.BytesCaptured - prev.BytesCaptured,
		BytesForwarded: s.BytesForwarded - prev.BytesForwarded,
		BytesDropped:   s.BytesDropped - prev.BytesDropped,
		BytesPlayed:    s.BytesPlayed - prev.BytesPlayed,
		ReadErrors:     s.ReadErrors - prev.ReadErrors,
		WriteErrors:    s.WriteErrors - prev.WriteErrors,
	}
}

type counters struct {
	blocksRead     atomic.Uint64
	bytesCaptured  atomic.Uint64
	bytesForwarded atomic.Uint64
	bytesDropped   atomic.Uint64
	bytesPlayed    atomic.Uint64
	readErrors     atomic.Uint64
	writeErrors    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		BlocksRead:     c.blocksRead.Load(),
		BytesCaptured:  c.bytesCaptured.Load(),
		BytesForwarded: c.bytesForwarded.Load(),
		BytesDropped:   c.bytesDropped.Load(),
		BytesPlayed:    c.bytesPlayed.Load(),
		ReadErrors:     c.readErrors.Load(),
		WriteErrors:    c.writeErrors.Load(),
	}
}
