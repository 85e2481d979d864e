package main

import "github.com/dkeye/Chatter/internal/cli"

func main() {
	cli.Execute()
}
