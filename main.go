package main

import (
	"ranktracker/cmd/cli"
)

func main() {
	cli.Execute()
}
