// Command xcdb upgrades and inspects the xcauth database.
package main

import "github.com/Failure404/xmpp-cloud-auth/internal/cli"

func main() {
	cli.Execute()
}
