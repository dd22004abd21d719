package main

import (
	"fmt"

	"github.com/fxkr/vaporlight"
)

// This file implements a monitor that subscribes to and displays the
// composited frames using the mixers frame subscription

func runMonitoring(mixer *vaporlight.Mixer, quitC <-chan struct{}) {

	frameC := mixer.Subscribe()

	for {
		select {
		case frame := <-frameC:
			logger.Debug(fmt.Sprintf("%+v", frame))
		case <-quitC:
			return
		}
	}
}
