// This program performs administrative tasks against an essential-node store.
package main

import (
	"github.com/essential-contributions/essential-node/app/tooling/admin/cmd"
)

func main() {
	cmd.Execute()
}
