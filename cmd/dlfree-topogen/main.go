/*
Generator of random topology description files
*/
package main

import "github.com/skycoin/dlfree/cmd/dlfree-topogen/commands"

func main() {
	commands.Execute()
}
