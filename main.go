package main

import "trackmarket/cmd"

func main() {
	cmd.Execute()
}
