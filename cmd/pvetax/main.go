package main

import "pvetax/internal/cli"

func main() {
	cli.Execute()
}
