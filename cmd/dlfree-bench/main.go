/*
Benchmark of collective transfers over an in-process dlfree cluster
*/
package main

import "github.com/skycoin/dlfree/cmd/dlfree-bench/commands"

func main() {
	commands.Execute()
}
