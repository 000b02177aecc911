package main

import "github.com/ppiankov/raspguard/internal/cli"

func main() {
	cli.Execute()
}
