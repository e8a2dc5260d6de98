package main

import "Musync/cmd"

func main() {
	cmd.Execute()
}
