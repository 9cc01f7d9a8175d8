package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gen2brain/loopback"
)

// inspect prints the header and signal summary of a capture written with -out.
func inspect(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	samples, rate, err := loopback.ReadWAV(file)
	if err != nil {
		return err
	}

	if rate <= 0 {
		return fmt.Errorf("invalid sample rate %d in %s", rate, path)
	}

	peak, peakAt := 0.0, 0
	for i, v := range samples {
		if a := math.Abs(v); a > peak {
			peak, peakAt = a, i
		}
	}

	duration := time.Duration(len(samples)) * time.Second / time.Duration(rate)

	fmt.Printf("Filename:           %s\n", path)
	fmt.Printf("Sample Rate:        %d Hz\n", rate)
	fmt.Printf("Samples:            %d\n", len(samples))
	fmt.Printf("Duration:           %s\n", formatDuration(duration))
	fmt.Printf("Peak:               %d at sample %d\n", loopback.Denormalize(peak), peakAt)

	return nil
}

// formatDuration formats a time.Duration as HH:MM:SS.ms.
func formatDuration(d time.Duration) string {
	millis := d.Milliseconds() % 1000
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
