package alsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCards = ` 0 [PCH            ]: HDA-Intel - HDA Intel PCH
                      HDA Intel PCH at 0xf7f10000 irq 32
 2 [Loopback       ]: Loopback - Loopback
                      Loopback 1
`
	testPcms = `00-00: ALC3232 Analog : ALC3232 Analog : playback 1 : capture 1
00-03: HDMI 0 : HDMI 0 : playback 1
02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8
02-01: Loopback PCM : Loopback PCM : playback 8 : capture 8
05-00: Orphan : Orphan : playback 1
`
)

func TestParseCards(t *testing.T) {
	cards := parseCards(testCards, testPcms)
	require.Len(t, cards, 2)

	pch := cards[0]
	assert.Equal(t, 0, pch.ID)
	assert.Equal(t, "PCH", pch.Name)
	assert.Equal(t, "HDA-Intel - HDA Intel PCH", pch.Description)
	assert.Equal(t, []SoundCardDevice{
		{ID: 0, Description: "ALC3232 Analog", Playback: true},
		{ID: 0, Description: "ALC3232 Analog"},
		{ID: 3, Description: "HDMI 0", Playback: true},
	}, pch.Devices)

	lb := cards[1]
	assert.Equal(t, 2, lb.ID)
	assert.Equal(t, "Loopback", lb.Name)
	assert.Len(t, lb.Devices, 4)
}

func TestParseCardsEmpty(t *testing.T) {
	assert.Empty(t, parseCards("--- no soundcards ---\n", ""))
}
