package main

import (
	"os"
)

var version = "v0.0.0-dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
