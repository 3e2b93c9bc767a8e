package main

import "knowgo/cmd"

func main() {
	cmd.Execute()
}
