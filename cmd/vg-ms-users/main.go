package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/IsaelFatamaDev/vg-ms-users-rev/internal/app"
)

func main() {
	// .envが無い環境（コンテナ等）では環境変数のみを使用する
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
