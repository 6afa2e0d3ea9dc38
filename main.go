package main

import (
	"log"
	"os"

	"clipdeck/internal/cli"
	"clipdeck/internal/logging"
)

func main() {
	logPath := logging.DefaultLogPath()
	if err := logging.Setup(logPath, os.Getenv("CLIPDECK_DEBUG") != ""); err != nil {
		log.Printf("Failed to setup logging: %v", err)
	}
	defer logging.Close()

	if err := cli.Execute(); err != nil {
		logging.Close()
		log.Fatal(err)
	}
}
