// Command scanstage drives the linear scanning stage: one-shot scans from
// the command line, a long-running web control surface, profile previews
// and manual jogs.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
