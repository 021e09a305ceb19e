package main

import "github.com/inovacc/labelr/cmd"

func main() {
	cmd.Execute()
}
