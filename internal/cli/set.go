package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/models"
)

var (
	setTitle       string
	setDescription string
	setValues      []string
	setOrder       int
	setListPublic  bool
	setShowVersion int
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Compose fragments into term sets",
}

var setCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty private term set owned by --user",
	Args:  cobra.NoArgs,
	Run:   runSetCreate,
}

var setAddCmd = &cobra.Command{
	Use:   "add <set-id> <fragment-id>",
	Short: "Append a fragment reference to a set",
	Long: `Append a fragment reference to a set.

Without --order the reference goes after the last one. Parameter values
bind placeholders for this reference only.

Examples:
  douit set add $SET $FRAG --value STATE=Delaware --value PARTY="Acme Inc."`,
	Args: cobra.ExactArgs(2),
	Run:  runSetAdd,
}

var setReorderCmd = &cobra.Command{
	Use:   "reorder <set-id> <ref-id>=<order>...",
	Short: "Change the order of existing references",
	Args:  cobra.MinimumNArgs(2),
	Run:   runSetReorder,
}

var setReplaceCmd = &cobra.Command{
	Use:   "replace <set-id> <fragment-id>...",
	Short: "Replace the reference list, archiving the current version",
	Long: `Replace the reference list of a set with the given fragments, in order.

The current version and its references are archived first. Fragments already
in the set keep the parameter values of their first current reference.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSetReplace,
}

var setListCmd = &cobra.Command{
	Use:   "list",
	Short: "List term sets owned by --user, or all public sets",
	Args:  cobra.NoArgs,
	Run:   runSetList,
}

var setShowCmd = &cobra.Command{
	Use:   "show <set-id>",
	Short: "Show a set with its resolved fragments",
	Args:  cobra.ExactArgs(1),
	Run:   runSetShow,
}

var setRenderCmd = &cobra.Command{
	Use:   "render <set-id>",
	Short: "Render a set, substituting parameter values",
	Args:  cobra.ExactArgs(1),
	Run:   runSetRender,
}

var setParamsCmd = &cobra.Command{
	Use:   "params <set-id>",
	Short: "Show parameter values shared by every reference that binds them",
	Args:  cobra.ExactArgs(1),
	Run:   runSetParams,
}

var setHistoryCmd = &cobra.Command{
	Use:   "history <set-id>",
	Short: "List archived versions of a set",
	Args:  cobra.ExactArgs(1),
	Run:   runSetHistory,
}

var setPublishCmd = &cobra.Command{
	Use:   "publish <set-id>",
	Short: "Make a set public",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runSetVisibility(cmd, args[0], true) },
}

var setUnpublishCmd = &cobra.Command{
	Use:   "unpublish <set-id>",
	Short: "Make a set private",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runSetVisibility(cmd, args[0], false) },
}

var setDeleteCmd = &cobra.Command{
	Use:   "delete <set-id>",
	Short: "Delete a set and its current references",
	Args:  cobra.ExactArgs(1),
	Run:   runSetDelete,
}

func init() {
	setCmd.AddCommand(setCreateCmd, setAddCmd, setReorderCmd, setReplaceCmd, setListCmd,
		setShowCmd, setRenderCmd, setParamsCmd, setHistoryCmd, setPublishCmd, setUnpublishCmd, setDeleteCmd)

	setCreateCmd.Flags().StringVar(&setTitle, "title", "", "Set title")
	setCreateCmd.Flags().StringVar(&setDescription, "description", "", "Set description")
	setAddCmd.Flags().StringArrayVar(&setValues, "value", nil, "Parameter value NAME=value, repeat for multiple")
	setAddCmd.Flags().IntVar(&setOrder, "order", 0, "Explicit order (default: after the last reference)")
	setListCmd.Flags().BoolVar(&setListPublic, "public", false, "List every public set instead")
	setShowCmd.Flags().IntVar(&setShowVersion, "version", 0, "Show an archived version")
}

// loadOwnedSet returns the set or exits when it is missing or owned by another user.
func loadOwnedSet(c *cmdContext, cmd *cobra.Command, setID string) *models.TermSet {
	set, err := c.Engine.Sets.GetSet(cmd.Context(), setID)
	if err != nil {
		failOn("load term set", err)
	}
	if set == nil {
		exitError("term set '%s' not found", setID)
	}
	if set.CreatedBy != "" && set.CreatedBy != requireUser() {
		exitError("term set '%s' is owned by %s", setID, set.CreatedBy)
	}
	return set
}

func runSetCreate(cmd *cobra.Command, args []string) {
	user := requireUser()
	if strings.TrimSpace(setTitle) == "" {
		exitError("--title is required")
	}

	c := initContext()
	defer c.Close()

	id, err := c.Engine.Sets.CreateSet(cmd.Context(), setTitle, setDescription, user)
	if err != nil {
		failOn("create term set", err)
	}
	if jsonOutput {
		printJSON(map[string]string{"id": id})
		return
	}
	color.New(color.FgGreen).Printf("Created term set %s\n", id)
}

func runSetAdd(cmd *cobra.Command, args []string) {
	values, err := parseValues(setValues)
	if err != nil {
		exitError("%v", err)
	}
	var order *int
	if cmd.Flags().Changed("order") {
		order = &setOrder
	}

	c := initContext()
	defer c.Close()
	loadOwnedSet(c, cmd, args[0])

	ctx := cmd.Context()
	frag, err := c.Engine.Fragments.Get(ctx, args[1])
	if err != nil {
		failOn("load fragment", err)
	}
	if frag == nil {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: fragment '%s' does not exist\n", args[1])
	}

	refID, err := c.Engine.Sets.AddFragmentRef(ctx, args[0], args[1], values, order)
	if err != nil {
		failOn("add fragment", err)
	}
	if jsonOutput {
		printJSON(map[string]string{"id": refID})
		return
	}
	color.New(color.FgGreen).Printf("Added reference %s\n", refID)
}

func runSetReorder(cmd *cobra.Command, args []string) {
	orders := make([]core.RefOrder, 0, len(args)-1)
	for _, arg := range args[1:] {
		refID, raw, ok := strings.Cut(arg, "=")
		n, err := strconv.Atoi(raw)
		if !ok || refID == "" || err != nil {
			exitError("invalid order %q: want REF_ID=ORDER", arg)
		}
		orders = append(orders, core.RefOrder{RefID: refID, Order: n})
	}

	c := initContext()
	defer c.Close()
	loadOwnedSet(c, cmd, args[0])

	if err := c.Engine.Sets.ReorderRefs(cmd.Context(), args[0], orders); err != nil {
		failOn("reorder", err)
	}
	fmt.Printf("Reordered %d references\n", len(orders))
}

func runSetReplace(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()
	loadOwnedSet(c, cmd, args[0])

	ctx := cmd.Context()
	current, err := c.Engine.Sets.Refs(ctx, args[0])
	if err != nil {
		failOn("load references", err)
	}
	kept := make(map[string]map[string]string, len(current))
	for _, ref := range current {
		if _, ok := kept[ref.FragmentID]; !ok {
			kept[ref.FragmentID] = ref.ParameterValues
		}
	}

	refs := make([]core.RefInput, 0, len(args)-1)
	for _, fragID := range args[1:] {
		refs = append(refs, core.RefInput{FragmentID: fragID, ParameterValues: kept[fragID]})
	}

	if err := c.Engine.Sets.UpdateSet(ctx, args[0], refs); err != nil {
		failOn("update term set", err)
	}
	color.New(color.FgGreen).Printf("Replaced references of %s (%d fragments)\n", shortID(args[0]), len(refs))
}

func runSetList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	var (
		sets []*models.TermSet
		err  error
	)
	if setListPublic {
		sets, err = c.Engine.Sets.ListPublic(cmd.Context())
	} else {
		sets, err = c.Engine.Sets.ListSets(cmd.Context(), requireUser())
	}
	if err != nil {
		failOn("list term sets", err)
	}

	if jsonOutput {
		printJSON(sets)
		return
	}
	if len(sets) == 0 {
		fmt.Println("No term sets")
		return
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	for _, s := range sets {
		yellow.Printf("%s ", shortID(s.ID))
		fmt.Printf("v%-3d %s", s.CurrentVersion, s.Title)
		if s.IsPublic {
			cyan.Print(" (public)")
		}
		fmt.Println()
	}
}

func runSetShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ctx := cmd.Context()
	if setShowVersion > 0 {
		v, err := c.Engine.Sets.Version(ctx, args[0], setShowVersion)
		if err != nil {
			failOn("load version", err)
		}
		if jsonOutput {
			printJSON(v)
			return
		}
		color.New(color.FgYellow).Printf("term set %s", args[0])
		color.New(color.FgCyan).Printf(" (v%d, archived %s)\n", v.Version.Version, formatTime(v.Version.ArchivedAt))
		for _, ref := range v.Refs {
			fmt.Printf("  %3d  %s\n", ref.Order, ref.FragmentID)
		}
		return
	}

	resolved, err := c.Engine.Sets.GetWithFragments(ctx, args[0])
	if err != nil {
		failOn("load term set", err)
	}
	if jsonOutput {
		printJSON(resolved)
		return
	}

	set := resolved.Set
	color.New(color.FgYellow).Printf("term set %s", set.ID)
	color.New(color.FgCyan).Printf(" (v%d)\n", set.CurrentVersion)
	fmt.Printf("Title:   %s\n", set.Title)
	if set.Description != "" {
		fmt.Printf("About:   %s\n", set.Description)
	}
	fmt.Printf("Owner:   %s\n", set.CreatedBy)
	fmt.Printf("Public:  %t\n\n", set.IsPublic)

	red := color.New(color.FgRed)
	for _, e := range resolved.Fragments {
		fmt.Printf("  %3d  %s  ", e.Ref.Order, shortID(e.Ref.ID))
		if e.Fragment == nil {
			red.Printf("missing fragment %s\n", e.Ref.FragmentID)
			continue
		}
		fmt.Printf("%s (v%d)\n", e.Fragment.Title, e.Fragment.CurrentVersion)
	}
}

func runSetRender(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	rendered, err := c.Engine.Sets.RenderSet(cmd.Context(), args[0])
	if err != nil {
		failOn("render term set", err)
	}
	if jsonOutput {
		printJSON(rendered)
		return
	}
	bold := color.New(color.Bold)
	for i, f := range rendered.Fragments {
		if i > 0 {
			fmt.Println()
		}
		bold.Printf("%d. %s\n", i+1, f.Title)
		fmt.Println(f.RenderedContent)
	}
}

func runSetParams(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	resolved, err := c.Engine.Sets.GetWithFragments(cmd.Context(), args[0])
	if err != nil {
		failOn("load term set", err)
	}
	params := core.CommonParameters(resolved.Fragments)
	if jsonOutput {
		printJSON(map[string]interface{}{"parameters": params})
		return
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	cyan := color.New(color.FgCyan)
	for _, name := range names {
		cyan.Printf("  %s", name)
		fmt.Printf(" = %s\n", params[name])
	}
}

func runSetHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	versions, err := c.Engine.Sets.Versions(cmd.Context(), args[0])
	if err != nil {
		failOn("list versions", err)
	}
	if jsonOutput {
		printJSON(versions)
		return
	}
	if len(versions) == 0 {
		fmt.Println("No archived versions")
		return
	}
	yellow := color.New(color.FgYellow)
	for _, v := range versions {
		yellow.Printf("v%-3d ", v.Version)
		fmt.Printf("%s  %d references\n", formatTime(v.ArchivedAt), v.RefCount)
	}
}

func runSetVisibility(cmd *cobra.Command, setID string, public bool) {
	c := initContext()
	defer c.Close()
	loadOwnedSet(c, cmd, setID)

	if err := c.Engine.Sets.SetVisibility(cmd.Context(), setID, public); err != nil {
		failOn("set visibility", err)
	}
	if public {
		fmt.Printf("Term set %s is now public\n", shortID(setID))
	} else {
		fmt.Printf("Term set %s is now private\n", shortID(setID))
	}
}

func runSetDelete(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()
	loadOwnedSet(c, cmd, args[0])

	if err := c.Engine.Sets.DeleteSet(cmd.Context(), args[0]); err != nil {
		failOn("delete term set", err)
	}
	fmt.Printf("Deleted term set %s\n", shortID(args[0]))
}
