/*
Package cli provides shared helpers for the kirogw command: exit-code
aware errors, table and JSON output, and signal-driven shutdown.

Output formatting for list commands:

	table := &cli.Table{Headers: []string{"ID", "NAME"}}
	table.Add("1", "ci-key")
	table.WriteTo(os.Stdout)

Graceful shutdown:

	ctx, cancel := cli.SignalContext()
	defer cancel()
	// ctx is cancelled on the first SIGINT/SIGTERM; a second one
	// terminates the process.
*/
package cli
