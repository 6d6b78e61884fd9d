package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// main inspects and appends to FAT32 images.
func main() {
	if err := newCmd().Execute(); err != nil {
		log.Debug(err)
		os.Exit(1)
	}
}
