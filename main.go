package main

import "github.com/sadopc/stackvault/internal/cli"

func main() {
	cli.Execute()
}
