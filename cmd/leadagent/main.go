// leadagent runs the inbound lead pipeline.
//
// Usage:
//
//	leadagent serve [--config=<path>]
//	leadagent local --input=<leads.csv> --output=<outcomes.csv>
//	leadagent slack-check
//	leadagent secret set <name>   (value read from stdin)
//	leadagent secret delete <name>
package main

import (
	"fmt"
	"os"

	"github.com/shpitdev/inbound-lead-agent/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, util.RedactSecrets(err.Error()))
		os.Exit(1)
	}
}
