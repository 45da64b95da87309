package main

import "github.com/netscope-io/netscope/cmd/netscope/commands"

func main() {
	commands.Execute()
}
