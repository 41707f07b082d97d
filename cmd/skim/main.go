package main

import (
	"skim/cmd/cmd"
	"skim/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
