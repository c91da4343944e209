package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var understoodVersion int

var understoodCmd = &cobra.Command{
	Use:   "understood",
	Short: "Track which fragment versions --user has understood",
}

var understoodAddCmd = &cobra.Command{
	Use:   "add <fragment-id>",
	Short: "Record that --user understood a fragment version",
	Long: `Record that --user understood a fragment version.

Without --version the fragment's current version is recorded.`,
	Args: cobra.ExactArgs(1),
	Run:  runUnderstoodAdd,
}

var understoodRemoveCmd = &cobra.Command{
	Use:   "remove <fragment-id>",
	Short: "Remove every record for a fragment",
	Args:  cobra.ExactArgs(1),
	Run:   runUnderstoodRemove,
}

var understoodListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, most recent first",
	Args:  cobra.NoArgs,
	Run:   runUnderstoodList,
}

var understoodCheckCmd = &cobra.Command{
	Use:   "check <fragment-id>",
	Short: "Report whether a fragment, or one --version of it, is understood",
	Args:  cobra.ExactArgs(1),
	Run:   runUnderstoodCheck,
}

var understoodStatusCmd = &cobra.Command{
	Use:   "status <set-id>",
	Short: "Show understanding of every fragment of a set",
	Args:  cobra.ExactArgs(1),
	Run:   runUnderstoodStatus,
}

var understoodStaleCmd = &cobra.Command{
	Use:   "stale <set-id>",
	Short: "List fragments of a set that changed since they were understood",
	Args:  cobra.ExactArgs(1),
	Run:   runUnderstoodStale,
}

func init() {
	understoodCmd.AddCommand(understoodAddCmd, understoodRemoveCmd, understoodListCmd,
		understoodCheckCmd, understoodStatusCmd, understoodStaleCmd)

	understoodAddCmd.Flags().IntVar(&understoodVersion, "version", 0, "Fragment version (default: current)")
	understoodCheckCmd.Flags().IntVar(&understoodVersion, "version", 0, "Only match this version")
}

func runUnderstoodAdd(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	ctx := cmd.Context()
	version := understoodVersion
	if version == 0 {
		frag, err := c.Engine.Fragments.Get(ctx, args[0])
		if err != nil {
			failOn("load fragment", err)
		}
		if frag == nil {
			exitError("fragment '%s' not found; pass --version to record it anyway", args[0])
		}
		version = frag.CurrentVersion
	}

	id, err := c.Engine.Ledger.AddRecord(ctx, user, args[0], version)
	if err != nil {
		failOn("record understanding", err)
	}
	if jsonOutput {
		printJSON(map[string]string{"id": id})
		return
	}
	color.New(color.FgGreen).Printf("Understood %s v%d\n", shortID(args[0]), version)
}

func runUnderstoodRemove(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	if err := c.Engine.Ledger.RemoveRecord(cmd.Context(), user, args[0]); err != nil {
		failOn("remove records", err)
	}
	fmt.Printf("Removed records for %s\n", shortID(args[0]))
}

func runUnderstoodList(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	records, err := c.Engine.Ledger.ListForUser(cmd.Context(), user)
	if err != nil {
		failOn("list records", err)
	}
	if jsonOutput {
		printJSON(records)
		return
	}
	if len(records) == 0 {
		fmt.Println("Nothing understood yet")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, r := range records {
		yellow.Printf("%s ", shortID(r.FragmentID))
		fmt.Printf("v%-3d %s\n", r.Version, formatTime(r.UnderstoodAt))
	}
}

func runUnderstoodCheck(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	var version *int
	if understoodVersion > 0 {
		version = &understoodVersion
	}
	ok, err := c.Engine.Ledger.IsUnderstood(cmd.Context(), user, args[0], version)
	if err != nil {
		failOn("check understanding", err)
	}
	if jsonOutput {
		printJSON(map[string]bool{"understood": ok})
		return
	}
	if ok {
		color.New(color.FgGreen).Println("understood")
	} else {
		color.New(color.FgRed).Println("not understood")
	}
}

func runUnderstoodStatus(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	statuses, err := c.Engine.Ledger.StatusForSet(cmd.Context(), user, args[0])
	if err != nil {
		failOn("set status", err)
	}
	if jsonOutput {
		printJSON(statuses)
		return
	}
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, s := range statuses {
		if s.IsUnderstood {
			green.Printf("  ✓ %s", shortID(s.FragmentID))
			fmt.Printf("  v%d  %s\n", *s.Version, formatTime(*s.UnderstoodAt))
		} else {
			red.Printf("  ✗ %s\n", shortID(s.FragmentID))
		}
	}
}

func runUnderstoodStale(cmd *cobra.Command, args []string) {
	user := requireUser()
	c := initContext()
	defer c.Close()

	stale, err := c.Engine.Ledger.StaleForSet(cmd.Context(), user, args[0])
	if err != nil {
		failOn("stale fragments", err)
	}
	if jsonOutput {
		printJSON(stale)
		return
	}
	if len(stale) == 0 {
		fmt.Println("Everything understood is up to date")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, s := range stale {
		yellow.Printf("  %s", shortID(s.FragmentID))
		fmt.Printf("  understood v%d, now v%d\n", s.AcknowledgedVersion, s.CurrentVersion)
	}
}
