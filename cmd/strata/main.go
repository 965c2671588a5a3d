package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/strata-systems/strata/pkg/database"
	"github.com/strata-systems/strata/pkg/log"
	"github.com/strata-systems/strata/pkg/strata"
	"github.com/strata-systems/strata/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - embedded multi-model branch-aware storage engine",
	Long: `Strata is an embedded, multi-model storage engine: KV entries,
state cells with CAS, an append-only event log, JSON documents, and
vector collections, all inside isolated branches over one transactional
substrate.

This CLI opens a database directory and executes commands against it.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("data-dir", "./strata-data", "Database directory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(jsonCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(execCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
		Output:     os.Stderr,
	})
}

// openDB opens the configured database directory.
func openDB(cmd *cobra.Command) (*strata.Strata, error) {
	dir, _ := cmd.Flags().GetString("data-dir")
	return strata.Open(dir)
}

// parseValue turns a CLI argument into a Value: int, float, bool, and
// null literals parse to their kinds, everything else is a string.
func parseValue(arg string) types.Value {
	switch arg {
	case "null":
		return types.NewNull()
	case "true":
		return types.NewBool(true)
	case "false":
		return types.NewBool(false)
	}
	if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return types.NewInt(i)
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return types.NewFloat(f)
	}
	return types.NewString(arg)
}

func renderValue(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return "null"
	case types.KindBool:
		return strconv.FormatBool(v.Bool)
	case types.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case types.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case types.KindString:
		return v.Str
	case types.KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	case types.KindArray:
		out := "["
		for i, item := range v.Array {
			if i > 0 {
				out += ", "
			}
			out += renderValue(item)
		}
		return out + "]"
	case types.KindObject:
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += k + ": " + renderValue(v.Object[k])
		}
		return out + "}"
	default:
		return "?"
	}
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the database responds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		out, err := db.Execute(database.Command{Op: database.OpPing})
		if err != nil {
			return err
		}
		fmt.Println(out.Message)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database information",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		out, err := db.Execute(database.Command{Op: database.OpInfo})
		if err != nil {
			return err
		}
		fmt.Printf("Path:           %s\n", out.Info.Path)
		fmt.Printf("Durability:     %s\n", out.Info.Durability)
		fmt.Printf("Commit version: %d\n", out.Info.CommitVersion)
		fmt.Printf("Branches:       %d\n", out.Info.BranchCount)
		counters := db.DurabilityCounters()
		fmt.Printf("WAL appends:    %d\n", counters.WalAppends)
		fmt.Printf("Sync calls:     %d\n", counters.SyncCalls)
		fmt.Printf("Bytes written:  %d\n", counters.BytesWritten)
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Force the WAL to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Flush()
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Checkpoint committed state and truncate the WAL",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Compact()
	},
}
