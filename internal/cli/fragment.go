package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/models"
	"github.com/douit-app/douit/internal/render"
)

var (
	fragTitle       string
	fragContent     string
	fragContentFile string
	fragParams      []string
	fragTags        []string
	fragListTag     string
	fragShowVersion int
	fragForce       bool
)

var fragmentCmd = &cobra.Command{
	Use:     "fragment",
	Aliases: []string{"frag"},
	Short:   "Manage text fragments",
}

var fragmentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a fragment",
	Long: `Create a fragment at version 1.

Content may contain [NAME] placeholders. Parameters default to the
placeholders found in the content.

Examples:
  douit fragment create --title "Governing law" --content "Laws of [STATE] apply."
  douit fragment create --title "Fees" --file fees.txt --tag billing`,
	Args: cobra.NoArgs,
	Run:  runFragmentCreate,
}

var fragmentUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a fragment, archiving its current version",
	Args:  cobra.ExactArgs(1),
	Run:   runFragmentUpdate,
}

var fragmentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a fragment or one of its archived versions",
	Args:  cobra.ExactArgs(1),
	Run:   runFragmentShow,
}

var fragmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fragments, most recently updated first",
	Args:  cobra.NoArgs,
	Run:   runFragmentList,
}

var fragmentHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List archived versions of a fragment",
	Args:  cobra.ExactArgs(1),
	Run:   runFragmentHistory,
}

var fragmentRefsCmd = &cobra.Command{
	Use:   "refs <id>",
	Short: "List term sets referencing a fragment",
	Args:  cobra.ExactArgs(1),
	Run:   runFragmentRefs,
}

var fragmentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a fragment unless a term set references it",
	Long: `Delete a fragment.

Deletion is refused while any term set references the fragment. Pass
--force to delete anyway; referencing sets then render without it.`,
	Args: cobra.ExactArgs(1),
	Run:  runFragmentDelete,
}

func init() {
	fragmentCmd.AddCommand(fragmentCreateCmd, fragmentUpdateCmd, fragmentShowCmd,
		fragmentListCmd, fragmentHistoryCmd, fragmentRefsCmd, fragmentDeleteCmd)

	for _, cmd := range []*cobra.Command{fragmentCreateCmd, fragmentUpdateCmd} {
		f := cmd.Flags()
		f.StringVar(&fragTitle, "title", "", "Fragment title")
		f.StringVar(&fragContent, "content", "", "Fragment content")
		f.StringVar(&fragContentFile, "file", "", "Read content from file")
		f.StringArrayVar(&fragParams, "param", nil, "Declared parameter name, repeat for multiple")
		f.StringArrayVar(&fragTags, "tag", nil, "Tag, repeat for multiple")
	}
	fragmentListCmd.Flags().StringVar(&fragListTag, "tag", "", "Only list fragments with this tag")
	fragmentShowCmd.Flags().IntVar(&fragShowVersion, "version", 0, "Show an archived version")
	fragmentDeleteCmd.Flags().BoolVar(&fragForce, "force", false, "Delete even if term sets reference it")
}

// readContent resolves --content and --file. ok is false when neither was given.
func readContent() (string, bool) {
	if fragContentFile != "" {
		data, err := os.ReadFile(fragContentFile)
		if err != nil {
			exitError("failed to read %s: %v", fragContentFile, err)
		}
		return string(data), true
	}
	return fragContent, fragContent != ""
}

func runFragmentCreate(cmd *cobra.Command, args []string) {
	content, _ := readContent()
	if strings.TrimSpace(fragTitle) == "" {
		exitError("--title is required")
	}

	c := initContext()
	defer c.Close()

	params := fragParams
	if len(params) == 0 {
		params = render.Placeholders(content)
	}

	id, err := c.Engine.Fragments.Create(cmd.Context(), core.FragmentInput{
		Title:      fragTitle,
		Content:    content,
		Parameters: params,
		Tags:       fragTags,
	})
	if err != nil {
		failOn("create fragment", err)
	}

	if jsonOutput {
		printJSON(map[string]string{"id": id})
		return
	}
	color.New(color.FgGreen).Printf("Created fragment %s\n", id)
}

func runFragmentUpdate(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ctx := cmd.Context()
	frag, err := c.Engine.Fragments.Get(ctx, args[0])
	if err != nil {
		failOn("load fragment", err)
	}
	if frag == nil {
		exitError("fragment '%s' not found", args[0])
	}

	// Unset flags keep the fragment's current values.
	in := core.FragmentInput{
		Title:      frag.Title,
		Content:    frag.Content,
		Parameters: frag.Parameters,
		Tags:       frag.Tags,
	}
	if cmd.Flags().Changed("title") {
		in.Title = fragTitle
	}
	if content, ok := readContent(); ok || cmd.Flags().Changed("content") {
		in.Content = content
		if !cmd.Flags().Changed("param") {
			in.Parameters = render.Placeholders(content)
		}
	}
	if cmd.Flags().Changed("param") {
		in.Parameters = fragParams
	}
	if cmd.Flags().Changed("tag") {
		in.Tags = fragTags
	}

	if err := c.Engine.Fragments.Update(ctx, args[0], in); err != nil {
		failOn("update fragment", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"id": args[0], "version": frag.CurrentVersion + 1})
		return
	}
	color.New(color.FgGreen).Printf("Updated fragment %s to version %d\n", shortID(args[0]), frag.CurrentVersion+1)
}

func runFragmentShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	ctx := cmd.Context()
	if fragShowVersion > 0 {
		v, err := c.Engine.Fragments.Version(ctx, args[0], fragShowVersion)
		if err != nil {
			failOn("load version", err)
		}
		if jsonOutput {
			printJSON(v)
			return
		}
		printFragmentBody(v.FragmentID, v.Title, v.Version, v.Tags, v.Content)
		fmt.Printf("Archived: %s\n", formatTime(v.ArchivedAt))
		return
	}

	frag, err := c.Engine.Fragments.Get(ctx, args[0])
	if err != nil {
		failOn("load fragment", err)
	}
	if frag == nil {
		exitError("fragment '%s' not found", args[0])
	}
	if jsonOutput {
		printJSON(frag)
		return
	}
	printFragmentBody(frag.ID, frag.Title, frag.CurrentVersion, frag.Tags, frag.Content)
	if len(frag.Parameters) > 0 {
		fmt.Printf("Parameters: %s\n", strings.Join(frag.Parameters, ", "))
	}
	fmt.Printf("Updated:    %s\n", formatTime(frag.UpdatedAt))
}

func printFragmentBody(id, title string, version int, tags []string, content string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("fragment %s", id)
	color.New(color.FgCyan).Printf(" (v%d)\n", version)
	fmt.Printf("Title:      %s\n", title)
	if len(tags) > 0 {
		fmt.Printf("Tags:       %s\n", strings.Join(tags, ", "))
	}
	fmt.Println()
	for _, line := range strings.Split(content, "\n") {
		fmt.Printf("    %s\n", line)
	}
	fmt.Println()
}

func runFragmentList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	var (
		frags []*models.Fragment
		err   error
	)
	if fragListTag != "" {
		frags, err = c.Engine.Fragments.ListByTag(cmd.Context(), fragListTag)
	} else {
		frags, err = c.Engine.Fragments.List(cmd.Context())
	}
	if err != nil {
		failOn("list fragments", err)
	}

	if jsonOutput {
		printJSON(frags)
		return
	}
	if len(frags) == 0 {
		fmt.Println("No fragments")
		return
	}

	yellow := color.New(color.FgYellow)
	for _, f := range frags {
		yellow.Printf("%s ", shortID(f.ID))
		fmt.Printf("v%-3d %s", f.CurrentVersion, f.Title)
		if len(f.Tags) > 0 {
			color.New(color.FgCyan).Printf(" [%s]", strings.Join(f.Tags, ", "))
		}
		fmt.Println()
	}
}

func runFragmentHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	versions, err := c.Engine.Fragments.Versions(cmd.Context(), args[0])
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
		fmt.Printf("%s  %s\n", formatTime(v.ArchivedAt), v.Title)
	}
}

func runFragmentRefs(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	refs, err := c.Engine.Guard.FindReferencingSets(cmd.Context(), args[0])
	if err != nil {
		failOn("find referencing sets", err)
	}

	if jsonOutput {
		printJSON(refs)
		return
	}
	if len(refs) == 0 {
		fmt.Println("Not referenced by any term set")
		return
	}
	for _, r := range refs {
		fmt.Printf("  %s\n", r.SetID)
	}
}

func runFragmentDelete(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	result, err := c.Engine.Fragments.Delete(cmd.Context(), args[0], fragForce)
	if err != nil {
		failOn("delete fragment", err)
	}

	if jsonOutput {
		printJSON(result)
		if !result.Success {
			os.Exit(1)
		}
		return
	}
	if !result.Success {
		red := color.New(color.FgRed)
		red.Printf("Refused: %s\n", result.Message)
		for _, r := range result.ReferencingSets {
			fmt.Printf("  %s\n", r.SetID)
		}
		fmt.Println("\nRemove the fragment from these sets first, or pass --force.")
		os.Exit(1)
	}
	color.New(color.FgGreen).Printf("Deleted fragment %s\n", shortID(args[0]))
}
