package main

import "github.com/encodeous/spindle/cmd"

func main() {
	cmd.Execute()
}
