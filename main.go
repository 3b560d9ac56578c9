package main

import "github.com/tarmount/tarmount/cmd"

func main() {
	cmd.Execute()
}
