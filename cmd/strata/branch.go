package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Branch operations",
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		info, err := db.CreateBranch(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created branch %s (id %s)\n", info.Name, info.ID)
		return nil
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.DeleteBranch(args[0])
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		for _, info := range db.BranchList(limit, offset) {
			created := time.UnixMilli(info.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Printf("%s\tv%d\tcreated %s\n", info.Name, info.Version, created)
		}
		return nil
	},
}

var branchGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		info, err := db.BranchGet(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:       %s\n", info.Name)
		fmt.Printf("ID:         %s\n", info.ID)
		fmt.Printf("Version:    %d\n", info.Version)
		fmt.Printf("Created at: %s\n", time.UnixMilli(info.CreatedAt).UTC().Format(time.RFC3339))
		fmt.Printf("Updated at: %s\n", time.UnixMilli(info.UpdatedAt).UTC().Format(time.RFC3339))
		return nil
	},
}

var branchExportCmd = &cobra.Command{
	Use:   "export <name> <bundle-path>",
	Short: "Export a branch to a bundle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		res, err := db.BranchExport(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d entries (%d bytes)\n", res.EntryCount, res.BundleSize)
		return nil
	},
}

var branchImportCmd = &cobra.Command{
	Use:   "import <bundle-path>",
	Short: "Import a branch from a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		res, err := db.BranchImport(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported branch %s: %d transactions, %d keys\n",
			res.BranchID, res.TransactionsApplied, res.KeysWritten)
		return nil
	},
}

var branchValidateCmd = &cobra.Command{
	Use:   "validate <bundle-path>",
	Short: "Validate a bundle's checksums and layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		res, err := db.BranchValidateBundle(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("checksums_valid=%t entries=%d\n", res.ChecksumsValid, res.EntryCount)
		return nil
	},
}

func init() {
	branchListCmd.Flags().Int("limit", 0, "Maximum branches to list (0 = all)")
	branchListCmd.Flags().Int("offset", 0, "Branches to skip")
	branchCmd.AddCommand(
		branchCreateCmd,
		branchDeleteCmd,
		branchListCmd,
		branchGetCmd,
		branchExportCmd,
		branchImportCmd,
		branchValidateCmd,
	)
}
