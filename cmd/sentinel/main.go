package main

import "PatternSentinel/internal/cli"

func main() {
	cli.Execute()
}
