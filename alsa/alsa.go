//go:build linux && (amd64 || arm64)

package alsa

// PcmFormat is a sample format, one of the SNDRV_PCM_FORMAT_* values of the kernel headers.
type PcmFormat int32

const (
	SNDRV_PCM_FORMAT_S8       PcmFormat = 0
	SNDRV_PCM_FORMAT_U8       PcmFormat = 1
	SNDRV_PCM_FORMAT_S16_LE   PcmFormat = 2
	SNDRV_PCM_FORMAT_S16_BE   PcmFormat = 3
	SNDRV_PCM_FORMAT_S24_LE   PcmFormat = 6
	SNDRV_PCM_FORMAT_S32_LE   PcmFormat = 10
	SNDRV_PCM_FORMAT_FLOAT_LE PcmFormat = 14
	SNDRV_PCM_FORMAT_S24_3LE  PcmFormat = 32
)

// formatNames lists the formats reported by Capabilities.String.
var formatNames = []struct {
	format PcmFormat
	name   string
}{
	{SNDRV_PCM_FORMAT_S8, "S8"},
	{SNDRV_PCM_FORMAT_U8, "U8"},
	{SNDRV_PCM_FORMAT_S16_LE, "S16_LE"},
	{SNDRV_PCM_FORMAT_S16_BE, "S16_BE"},
	{SNDRV_PCM_FORMAT_S24_LE, "S24_LE"},
	{SNDRV_PCM_FORMAT_S24_3LE, "S24_3LE"},
	{SNDRV_PCM_FORMAT_S32_LE, "S32_LE"},
	{SNDRV_PCM_FORMAT_FLOAT_LE, "FLOAT_LE"},
}

// PcmState is the state of a PCM stream, one of the SNDRV_PCM_STATE_* values.
type PcmState int32

const (
	SNDRV_PCM_STATE_OPEN         PcmState = 0
	SNDRV_PCM_STATE_SETUP        PcmState = 1
	SNDRV_PCM_STATE_PREPARED     PcmState = 2
	SNDRV_PCM_STATE_RUNNING      PcmState = 3
	SNDRV_PCM_STATE_XRUN         PcmState = 4
	SNDRV_PCM_STATE_DRAINING     PcmState = 5
	SNDRV_PCM_STATE_PAUSED       PcmState = 6
	SNDRV_PCM_STATE_SUSPENDED    PcmState = 7
	SNDRV_PCM_STATE_DISCONNECTED PcmState = 8
)

// String returns the kernel name of the state.
func (s PcmState) String() string {
	names := [...]string{"OPEN", "SETUP", "PREPARED", "RUNNING", "XRUN", "DRAINING", "PAUSED", "SUSPENDED", "DISCONNECTED"}
	if s < 0 || int(s) >= len(names) {
		return "UNKNOWN"
	}

	return names[s]
}

// Stream selects the direction of a PCM device.
type Stream int

const (
	Playback Stream = iota
	Capture
)

// suffix is the last letter of the device node name.
func (s Stream) suffix() byte {
	if s == Capture {
		return 'c'
	}

	return 'p'
}

const sndrvPcmAccessRwInterleaved = 3

// Hardware parameter ids (SNDRV_PCM_HW_PARAM_*). Masks come first, then intervals.
type pcmParam int

const (
	paramAccess      pcmParam = 0
	paramFormat      pcmParam = 1
	paramSubformat   pcmParam = 2
	paramSampleBits  pcmParam = 8
	paramFrameBits   pcmParam = 9
	paramChannels    pcmParam = 10
	paramRate        pcmParam = 11
	paramPeriodTime  pcmParam = 12
	paramPeriodSize  pcmParam = 13
	paramPeriodBytes pcmParam = 14
	paramPeriods     pcmParam = 15
	paramBufferTime  pcmParam = 16
	paramBufferSize  pcmParam = 17
	paramBufferBytes pcmParam = 18
	paramTickTime    pcmParam = 19

	firstMask     = paramAccess
	lastMask      = paramSubformat
	firstInterval = paramSampleBits
	lastInterval  = paramTickTime
)

const sndrvPcmIntervalInteger = 1 << 2

const (
	sndrvPcmSyncPtrHwsync   = 1 << 0
	sndrvPcmSyncPtrAppl     = 1 << 1
	sndrvPcmSyncPtrAvailMin = 1 << 2
)

// PcmFormatToBits returns the storage width of a sample in bits, 0 for an unknown format.
func PcmFormatToBits(f PcmFormat) uint32 {
	switch f {
	case SNDRV_PCM_FORMAT_S32_LE, SNDRV_PCM_FORMAT_FLOAT_LE, SNDRV_PCM_FORMAT_S24_LE:
		return 32
	case SNDRV_PCM_FORMAT_S24_3LE:
		return 24
	case SNDRV_PCM_FORMAT_S16_LE, SNDRV_PCM_FORMAT_S16_BE:
		return 16
	case SNDRV_PCM_FORMAT_S8, SNDRV_PCM_FORMAT_U8:
		return 8
	default:
		return 0
	}
}
