package main

import "github.com/celestine-app/celestine/cmd/celestine/cmd"

func main() {
	cmd.Execute()
}
