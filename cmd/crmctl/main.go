// Command crmctl is the command line front end of the CRM admin dashboard.
package main

import (
	"os"

	"github.com/Sternrassler/crm-admin-client/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
