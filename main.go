package main

import "github.com/haxorport/haxorport-ports/cmd"

func main() {
	cmd.Execute()
}
