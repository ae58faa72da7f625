package main

import "github.com/tokenwarden/tokenwarden/cmd/tokenwarden/cmd"

func main() {
	cmd.Execute()
}
