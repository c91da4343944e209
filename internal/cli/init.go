package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/douit-app/douit/internal/config"
	"github.com/douit-app/douit/internal/docstore"
)

var initStore string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a douit workspace",
	Long: `Initialize a new douit workspace in the current directory.

Creates a .douit directory holding the configuration and the document store.

Examples:
  douit init
  douit init --store sqlite`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initStore, "store", docstore.BackendBolt, "Store backend (bolt|sqlite)")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("failed to get working directory: %v", err)
	}

	cfg, err := config.Initialize(cwd, initStore)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	// Opening the store creates its database file and collections.
	st, err := docstore.Open(cfg.Store, cfg.DataPath())
	if err != nil {
		os.RemoveAll(cfg.Path())
		exitError("failed to create store: %v", err)
	}
	if err := st.Ping(cmd.Context()); err != nil {
		st.Close()
		os.RemoveAll(cfg.Path())
		exitError("store not usable: %v", err)
	}
	st.Close()

	fmt.Printf("Initialized empty douit workspace in %s\n", cfg.Path())
	fmt.Printf("Store backend: %s\n", cfg.Store)
}
