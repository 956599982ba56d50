package main

import "tutti/cmd"

func main() {
	cmd.Execute()
}
