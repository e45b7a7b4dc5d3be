package main

import "maga/cmd/maga/cmd"

func main() {
	cmd.Execute()
}
