/*
Routing simulation over an overlay derived from a topology file
*/
package main

import "github.com/skycoin/dlfree/cmd/dlfree-sim/commands"

func main() {
	commands.Execute()
}
