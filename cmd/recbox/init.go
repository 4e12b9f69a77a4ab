package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/offlinehq/recbox/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var accountID string
	var dataDir string
	var serverURL string
	var collections []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the RecBox config",
		Run: func(cmd *cobra.Command, args []string) {
			if cfg, err := config.Load(config.DefaultConfigPath); err == nil {
				fmt.Println("RecBox already initialized")
				printConfig(cfg)
				os.Exit(0)
			}

			if accountID == "" {
				fmt.Printf("%s: %s\n", red("ERROR"), "account is required")
				os.Exit(1)
			}

			if len(collections) == 0 {
				fmt.Printf("%s: %s\n", red("ERROR"), "at least one collection is required")
				os.Exit(1)
			}

			cfg := &config.Config{
				AccountID:   accountID,
				DataDir:     dataDir,
				ServerURL:   serverURL,
				Collections: collections,
			}

			if err := cfg.Save(config.DefaultConfigPath); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}

			fmt.Println("RecBox initialized")
			printConfig(cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "account id")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", config.DefaultDataDir, "data directory")
	cmd.Flags().StringVarP(&serverURL, "server-url", "u", defaultServerURL, "record service URL")
	cmd.Flags().StringSliceVarP(&collections, "collections", "C", nil, "collection ids to sync")

	return cmd
}

func printConfig(cfg *config.Config) {
	fmt.Printf("Config Path: %s\n", green(cfg.Path))
	fmt.Printf("Account:     %s\n", cyan(cfg.AccountID))
	fmt.Printf("Data Dir:    %s\n", cyan(cfg.DataDir))
	fmt.Printf("Server:      %s\n", cyan(cfg.ServerURL))
	fmt.Printf("Collections: %s\n", cyan(strings.Join(cfg.Collections, ", ")))
}
