package main

import "github.com/gregLibert/cardemu/cmd"

func main() {
	cmd.Execute()
}
