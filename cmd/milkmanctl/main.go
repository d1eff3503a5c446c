package main

import "milkman/internal/cli"

func main() {
	cli.Execute()
}
