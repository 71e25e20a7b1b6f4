package main

import "github.com/rdjellab/mongosnap/cmd"

func main() {
	cmd.Execute()
}
