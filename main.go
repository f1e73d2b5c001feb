package main

import "github.com/tagops/visitflow/cmd"

func main() {
	cmd.Execute()
}
