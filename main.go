package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/camden-git/mediasysintegrity/cli"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	os.Exit(cli.Execute())
}
