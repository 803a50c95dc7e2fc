package main

import "github.com/papapumpkin/osmpoi/cmd"

func main() {
	cmd.Execute()
}
