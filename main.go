package main

import (
	"github.com/joho/godotenv"

	"github.com/pearl-assistant/pearl/cmd"
)

func main() {
	// Best effort; credentials may come from the config file instead.
	_ = godotenv.Load()

	cmd.Execute()
}
