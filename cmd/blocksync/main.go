package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"blocksync/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal("application terminated", "error", err)
	}
}
