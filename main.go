package main

import "github.com/nextlevelbuilder/courier/cmd"

func main() {
	cmd.Execute()
}
