package main

import "conference-central/cmd"

func main() {
	cmd.Execute()
}
