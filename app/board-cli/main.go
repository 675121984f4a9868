package main

import (
	"github.com/joho/godotenv"
	"log"
	"os"
)

func main() {
	// optional, the environment takes precedence
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		log.Printf("main: exited with error: %s", err.Error())
		os.Exit(1)
	}
}
