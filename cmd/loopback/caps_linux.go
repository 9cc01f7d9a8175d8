//go:build linux && (amd64 || arm64)

package main

import (
	"fmt"

	"github.com/gen2brain/loopback/alsa"
)

// printCaps asks the driver which configurations the two alsa devices accept.
func printCaps(o options) error {
	capture, playback, err := alsaDevices(o)
	if err != nil {
		return err
	}

	for _, dev := range []struct {
		name   string
		stream alsa.Stream
	}{{playback, alsa.Playback}, {capture, alsa.Capture}} {
		card, device, err := alsa.ParseName(dev.name)
		if err != nil {
			return err
		}

		caps, err := alsa.Query(card, device, dev.stream, alsa.Config{})
		if err != nil {
			return err
		}

		cfg := alsa.Config{Channels: 1, Rate: 48000, PeriodCount: alsa.DefaultPeriodCount, Format: alsa.SNDRV_PCM_FORMAT_S16_LE}
		minBytes, err := alsa.MinBufferBytes(card, device, dev.stream, cfg)

		fmt.Printf("%s:\n  %s\n", dev.name, caps)
		if err != nil {
			fmt.Printf("  minimum buffer for 48 kHz mono S16_LE: unavailable (%v)\n", err)
		} else {
			fmt.Printf("  minimum buffer for 48 kHz mono S16_LE: %d bytes\n", minBytes)
		}
	}

	return nil
}
