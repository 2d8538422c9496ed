package main

import "github/chapool/safe-refill/cmd"

func main() {
	cmd.Execute()
}
