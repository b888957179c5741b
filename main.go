// Command a11y-tracker scans sites for accessibility issues and publishes
// the results to spreadsheets.
package main

import (
	"github.com/JakeFAU/a11y-tracker/cmd"
)

func main() {
	cmd.Execute()
}
