// Command presence-node scans for known BLE devices and drives a relay and
// LED while one of them is in range.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
