//go:build !linux || !(amd64 || arm64)

package main

import "github.com/gen2brain/loopback/alsa"

func printCaps(options) error {
	return alsa.ErrUnsupported
}
