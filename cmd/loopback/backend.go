package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/gen2brain/loopback"
	"github.com/gen2brain/loopback/alsa"
	"github.com/gen2brain/loopback/memdev"
	"github.com/gen2brain/loopback/miniaudio"
)

const (
	// memLatencySamples is the echo delay of the in-memory dry run, 10 ms at 48 kHz.
	memLatencySamples = 480
	memPeriod         = 10 * time.Millisecond
)

func openBackend(o options, logger *log.Logger) (loopback.Backend, func(), error) {
	switch o.backend {
	case "alsa":
		capture, playback, err := alsaDevices(o)
		if err != nil {
			return nil, nil, err
		}

		b, err := alsa.NewBackend(capture, playback)
		if err != nil {
			return nil, nil, err
		}

		return b, func() {}, nil
	case "miniaudio":
		b, err := miniaudio.New(logger)
		if err != nil {
			return nil, nil, err
		}

		b.CaptureDevice = o.capture
		b.PlaybackDevice = o.playback

		return b, func() { _ = b.Close() }, nil
	case "mem":
		b := memdev.New()
		b.LatencySamples = memLatencySamples
		b.Period = memPeriod

		return b, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend '%s'", o.backend)
	}
}

// alsaDevices defaults both ends to the snd-aloop card: playback on device 0 comes back on capture device 1.
func alsaDevices(o options) (capture, playback string, err error) {
	capture, playback = o.capture, o.playback
	if capture != "" && playback != "" {
		return capture, playback, nil
	}

	card, err := alsa.FindCard("Loopback")
	if err != nil {
		return "", "", fmt.Errorf("no -capture/-playback given and %w", err)
	}

	if capture == "" {
		capture = alsa.DeviceName(uint(card), 1)
	}

	if playback == "" {
		playback = alsa.DeviceName(uint(card), 0)
	}

	return capture, playback, nil
}

func listDevices(backend string) error {
	switch backend {
	case "alsa":
		cards, err := alsa.EnumerateCards()
		if err != nil {
			return err
		}

		if len(cards) == 0 {
			fmt.Println("No sound cards found.")
		}

		for _, c := range cards {
			fmt.Print(c)
		}

		return nil
	case "miniaudio":
		b, err := miniaudio.New(log.Default())
		if err != nil {
			return err
		}
		defer b.Close()

		for _, kind := range []struct {
			name string
			typ  malgo.DeviceType
		}{{"Playback", malgo.Playback}, {"Capture", malgo.Capture}} {
			names, err := b.Devices(kind.typ)
			if err != nil {
				return err
			}

			fmt.Printf("%s devices:\n", kind.name)
			for i, name := range names {
				fmt.Printf("  %d: %s\n", i, name)
			}
		}

		return nil
	case "mem":
		fmt.Println("mem: in-memory delay line, no devices")

		return nil
	default:
		return fmt.Errorf("unknown backend '%s'", backend)
	}
}
