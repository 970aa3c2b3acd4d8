package main

import (
	"os"

	"bluebear.game/internal/lot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if lot.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
