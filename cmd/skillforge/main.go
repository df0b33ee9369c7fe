package main

import "github.com/skillforge-network/skillforge/internal/cli"

func main() {
	cli.Execute()
}
