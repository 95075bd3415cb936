package main

import "storyline/cmd"

func main() {
	cmd.Execute()
}
