package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// KV commands
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Key-value operations",
}

var kvPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Insert or overwrite a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := db.KvPut(args[0], parseValue(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("OK version=%d\n", version)
		return nil
	},
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		v, err := db.KvGet(args[0])
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Println(renderValue(*v))
		return nil
	},
}

var kvGetvCmd = &cobra.Command{
	Use:   "getv <key>",
	Short: "Read a key's full version chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		chain, err := db.KvGetv(args[0])
		if err != nil {
			return err
		}
		for _, rec := range chain {
			if rec.Tombstone {
				fmt.Printf("v%d\t(tombstone)\n", rec.Version)
				continue
			}
			fmt.Printf("v%d\t%s\n", rec.Version, renderValue(rec.Value))
		}
		return nil
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		deleted, err := db.KvDelete(args[0])
		if err != nil {
			return err
		}
		fmt.Println(deleted)
		return nil
	},
}

var kvListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List present keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := db.KvList(prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

// State commands
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "State cell operations",
}

var stateSetCmd = &cobra.Command{
	Use:   "set <cell> <value>",
	Short: "Write a cell unconditionally",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := db.StateSet(args[0], parseValue(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("OK version=%d\n", version)
		return nil
	},
}

var stateReadCmd = &cobra.Command{
	Use:   "read <cell>",
	Short: "Read a cell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		v, err := db.StateRead(args[0])
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Println(renderValue(*v))
		return nil
	},
}

var stateInitCmd = &cobra.Command{
	Use:   "init <cell> <value>",
	Short: "Create a cell if absent (idempotent)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := db.StateInit(args[0], parseValue(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("version=%d\n", version)
		return nil
	},
}

var stateCasCmd = &cobra.Command{
	Use:   "cas <cell> <expected-version> <value>",
	Short: "Compare-and-swap a cell (expected-version 'none' creates)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		var expected *uint64
		if args[1] != "none" {
			v, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("expected version %q: %w", args[1], err)
			}
			expected = &v
		}
		newVersion, err := db.StateCas(args[0], expected, parseValue(args[2]))
		if err != nil {
			return err
		}
		if newVersion == nil {
			fmt.Println("conflict")
			return nil
		}
		fmt.Printf("OK version=%d\n", *newVersion)
		return nil
	},
}

// Event commands
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event log operations",
}

var eventAppendCmd = &cobra.Command{
	Use:   "append <type> <payload>",
	Short: "Append an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		seq, err := db.EventAppend(args[0], parseValue(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("seq=%d\n", seq)
		return nil
	},
}

var eventReadCmd = &cobra.Command{
	Use:   "read <seq>",
	Short: "Read one event by sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		seq, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("sequence %q: %w", args[0], err)
		}
		rec, err := db.EventRead(seq)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Printf("seq=%d type=%s payload=%s\n", rec.Sequence, rec.Type, renderValue(rec.Payload))
		return nil
	},
}

var eventByTypeCmd = &cobra.Command{
	Use:   "by-type <type>",
	Short: "Read events of one type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		recs, err := db.EventReadByType(args[0])
		if err != nil {
			return err
		}
		for _, rec := range recs {
			fmt.Printf("seq=%d payload=%s\n", rec.Sequence, renderValue(rec.Payload))
		}
		return nil
	},
}

var eventLenCmd = &cobra.Command{
	Use:   "len",
	Short: "Count events",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := db.EventLen()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

// JSON commands
var jsonCmd = &cobra.Command{
	Use:   "json",
	Short: "JSON document operations",
}

var jsonGetCmd = &cobra.Command{
	Use:   "get <key> <path>",
	Short: "Read a document or sub-path ($ is the root)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		v, err := db.JsonGet(args[0], args[1])
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Println(renderValue(*v))
		return nil
	},
}

var jsonSetCmd = &cobra.Command{
	Use:   "set <key> <path> <value>",
	Short: "Write a document field ($ replaces the root)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := db.JsonSet(args[0], args[1], parseValue(args[2]))
		if err != nil {
			return err
		}
		fmt.Printf("OK version=%d\n", version)
		return nil
	},
}

var jsonDeleteCmd = &cobra.Command{
	Use:   "delete <key> <path>",
	Short: "Delete a document or field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		deleted, err := db.JsonDelete(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(deleted)
		return nil
	},
}

var jsonListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List document keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		keys, cursor, err := db.JsonList(prefix, "", limit)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		if cursor != "" {
			fmt.Printf("(more; cursor=%s)\n", cursor)
		}
		return nil
	},
}

func init() {
	kvCmd.AddCommand(kvPutCmd, kvGetCmd, kvGetvCmd, kvDeleteCmd, kvListCmd)
	stateCmd.AddCommand(stateSetCmd, stateReadCmd, stateInitCmd, stateCasCmd)
	eventCmd.AddCommand(eventAppendCmd, eventReadCmd, eventByTypeCmd, eventLenCmd)
	jsonListCmd.Flags().Int("limit", 0, "Page size (0 = all)")
	jsonCmd.AddCommand(jsonGetCmd, jsonSetCmd, jsonDeleteCmd, jsonListCmd)
}
