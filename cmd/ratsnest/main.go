// Command ratsnest checks the copper connectivity of a board description.
package main

import "github.com/papapumpkin/ratsnest/cmd"

func main() {
	cmd.Execute()
}
