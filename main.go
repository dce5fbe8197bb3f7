package main

import "github.com/xtmatch/xtmatch/cmd"

func main() {
	cmd.Execute()
}
