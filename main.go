package main

import (
	"auralite/cmd"
)

func main() {
	cmd.Execute()
}
