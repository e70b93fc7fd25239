package main

import (
	"os"

	"lorad/internal/loractl"
)

func main() {
	os.Exit(loractl.Main())
}
