package main

import (
	"github.com/karlmutch/errors"
)

// runWatch drains the daemon wide error channel into the process log.
// Components report here rather than logging directly so that the choice
// of destination stays with the binary.
func runWatch(errorC <-chan errors.Error, quitC <-chan struct{}) {
	for {
		select {
		case err := <-errorC:
			if err != nil {
				logger.Warn(err.Error())
			}
		case <-quitC:
			return
		}
	}
}
