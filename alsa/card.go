// Package alsa is a loopback backend that talks to Linux ALSA hardware PCM
// devices (/dev/snd/pcmC*D*) directly through ioctls, without alsa-lib.
//
// Only interleaved read/write access with 16-bit little-endian samples is
// supported, which is all a loopback latency test needs.
package alsa

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	cardsFile = "/proc/asound/cards"
	pcmFile   = "/proc/asound/pcm"
)

var (
	// " 0 [Loopback       ]: Loopback - Loopback"
	cardRegex = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)
	// "02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8"
	pcmRegex = regexp.MustCompile(`^(\d+)-(\d+): (.*?) :.*`)
)

// SoundCardDevice is one stream direction of a PCM device on a sound card.
type SoundCardDevice struct {
	ID          int
	Description string
	Playback    bool // False for capture.
}

// Name returns the device name in the "hw:C,D" form accepted by ParseName.
func (d SoundCardDevice) Name(card int) string {
	return DeviceName(uint(card), uint(d.ID))
}

// String returns a human-readable representation of the SoundCardDevice.
func (d SoundCardDevice) String() string {
	direction := "capture"
	if d.Playback {
		direction = "playback"
	}

	return fmt.Sprintf("device %d: %s [%s]", d.ID, d.Description, direction)
}

// SoundCard is an enumerated sound card with its PCM devices.
type SoundCard struct {
	ID          int
	Name        string
	Description string
	Devices     []SoundCardDevice
}

// String returns a human-readable representation of the SoundCard.
func (c SoundCard) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "card %d: %s (%s)\n", c.ID, c.Name, c.Description)
	for _, dev := range c.Devices {
		fmt.Fprintf(&sb, "  %s  %s\n", dev.Name(c.ID), dev)
	}

	return sb.String()
}

// EnumerateCards lists the sound cards and PCM devices found in /proc/asound.
func EnumerateCards() ([]SoundCard, error) {
	cards, err := os.ReadFile(cardsFile)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", cardsFile, err)
	}

	pcms, err := os.ReadFile(pcmFile)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", pcmFile, err)
	}

	return parseCards(string(cards), string(pcms)), nil
}

// FindCard returns the number of the first card whose id or description contains name.
func FindCard(name string) (int, error) {
	cards, err := EnumerateCards()
	if err != nil {
		return -1, err
	}

	for _, c := range cards {
		if strings.Contains(c.Name, name) || strings.Contains(c.Description, name) {
			return c.ID, nil
		}
	}

	return -1, fmt.Errorf("no sound card matching '%s'", name)
}

func parseCards(cards, pcms string) []SoundCard {
	byID := make(map[int]*SoundCard)

	for _, line := range strings.Split(cards, "\n") {
		m := cardRegex.FindStringSubmatch(line)
		if len(m) != 4 {
			continue
		}

		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		byID[id] = &SoundCard{
			ID:          id,
			Name:        strings.TrimSpace(m[2]),
			Description: strings.TrimSpace(m[3]),
		}
	}

	for _, line := range strings.Split(pcms, "\n") {
		m := pcmRegex.FindStringSubmatch(line)
		if len(m) < 4 {
			continue
		}

		cardID, _ := strconv.Atoi(m[1])
		devID, _ := strconv.Atoi(m[2])

		card, ok := byID[cardID]
		if !ok {
			continue
		}

		description := strings.TrimSpace(m[3])

		// One PCM device can carry both directions.
		if strings.Contains(line, "playback") {
			card.Devices = append(card.Devices, SoundCardDevice{ID: devID, Description: description, Playback: true})
		}

		if strings.Contains(line, "capture") {
			card.Devices = append(card.Devices, SoundCardDevice{ID: devID, Description: description})
		}
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := make([]SoundCard, 0, len(ids))
	for _, id := range ids {
		result = append(result, *byID[id])
	}

	return result
}

// NewBackend creates a backend from two "hw:C,D" device names.
func NewBackend(capture, playback string) (*Backend, error) {
	cc, cd, err := ParseName(capture)
	if err != nil {
		return nil, fmt.Errorf("capture device: %w", err)
	}

	pc, pd, err := ParseName(playback)
	if err != nil {
		return nil, fmt.Errorf("playback device: %w", err)
	}

	return &Backend{CaptureCard: cc, CaptureDevice: cd, PlaybackCard: pc, PlaybackDevice: pd}, nil
}

// ParseName parses a PCM name in the "hw:C,D" form. A bare "hw:C" selects device 0.
func ParseName(name string) (card, device uint, err error) {
	if !strings.HasPrefix(name, "hw:") {
		return 0, 0, fmt.Errorf("invalid PCM name '%s': missing 'hw:' prefix", name)
	}

	parts := strings.Split(strings.TrimPrefix(name, "hw:"), ",")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("invalid PCM name '%s': expected 'hw:card,device'", name)
	}

	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid card number '%s': %w", parts[0], err)
	}

	if len(parts) == 1 {
		return uint(c), 0, nil
	}

	d, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid device number '%s': %w", parts[1], err)
	}

	return uint(c), uint(d), nil
}

// DeviceName formats a card and device number as "hw:C,D".
func DeviceName(card, device uint) string {
	return fmt.Sprintf("hw:%d,%d", card, device)
}
