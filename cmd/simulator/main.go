package main

import "ring-simulator/internal/cli"

func main() {
	cli.Execute()
}
