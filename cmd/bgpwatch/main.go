// bgpwatch -- BGP convergence time measurement from UPDATE counters.
package main

import "github.com/dantte-lp/bgpwatch/cmd/bgpwatch/commands"

func main() {
	commands.Execute()
}
