package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/strata-systems/strata/pkg/database"
	"github.com/strata-systems/strata/pkg/types"
	"gopkg.in/yaml.v3"
)

// manifestCommand is one entry of an exec manifest: a Command plus the
// value fields, which need conversion from YAML's dynamic types.
type manifestCommand struct {
	database.Command `yaml:",inline"`
	RawValue         any            `yaml:"value"`
	RawMetadata      map[string]any `yaml:"metadata"`
}

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Execute a YAML list of commands in one session",
	Long: `Reads a YAML file containing a list of commands and executes them
sequentially in a single session, so txn_begin/txn_commit pairs group
the commands between them into one transaction.

Example manifest:

    - op: txn_begin
    - op: kv_put
      key: greeting
      value: hello
    - op: event_append
      event_type: audit
      value: wrote greeting
    - op: txn_commit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		var manifest []manifestCommand
		if err := yaml.Unmarshal(raw, &manifest); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}

		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		sess := db.Session()
		for i, mc := range manifest {
			c := mc.Command
			if mc.RawValue != nil {
				v, err := toValue(mc.RawValue)
				if err != nil {
					return fmt.Errorf("command %d: %w", i, err)
				}
				c.Value = &v
			}
			if mc.RawMetadata != nil {
				c.Metadata = make(map[string]types.Value, len(mc.RawMetadata))
				for k, rv := range mc.RawMetadata {
					v, err := toValue(rv)
					if err != nil {
						return fmt.Errorf("command %d metadata %q: %w", i, k, err)
					}
					c.Metadata[k] = v
				}
			}
			out, err := sess.Execute(c)
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, c.Op, err)
			}
			printOutput(i, c, out)
		}
		return nil
	},
}

// toValue converts a decoded YAML value into a Value.
func toValue(raw any) (types.Value, error) {
	switch v := raw.(type) {
	case nil:
		return types.NewNull(), nil
	case bool:
		return types.NewBool(v), nil
	case int:
		return types.NewInt(int64(v)), nil
	case int64:
		return types.NewInt(v), nil
	case uint64:
		return types.NewInt(int64(v)), nil
	case float64:
		return types.NewFloat(v), nil
	case string:
		return types.NewString(v), nil
	case []byte:
		return types.NewBytes(v), nil
	case []any:
		items := make([]types.Value, len(v))
		for i, item := range v {
			conv, err := toValue(item)
			if err != nil {
				return types.Value{}, err
			}
			items[i] = conv
		}
		return types.NewArray(items...), nil
	case map[string]any:
		fields := make(map[string]types.Value, len(v))
		for k, item := range v {
			conv, err := toValue(item)
			if err != nil {
				return types.Value{}, err
			}
			fields[k] = conv
		}
		return types.NewObject(fields), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

func printOutput(i int, c database.Command, out database.Output) {
	switch c.Op {
	case database.OpKvGet, database.OpStateRead, database.OpJsonGet:
		if out.Value == nil {
			fmt.Printf("[%d] %s: (nil)\n", i, c.Op)
		} else {
			fmt.Printf("[%d] %s: %s\n", i, c.Op, renderValue(*out.Value))
		}
	case database.OpEventAppend:
		fmt.Printf("[%d] %s: seq=%d\n", i, c.Op, out.Sequence)
	case database.OpEventLen:
		fmt.Printf("[%d] %s: %d\n", i, c.Op, out.Count)
	case database.OpTxnCommit:
		fmt.Printf("[%d] %s: version=%d\n", i, c.Op, out.Version)
	case database.OpKvList, database.OpJsonList:
		fmt.Printf("[%d] %s: %d keys\n", i, c.Op, len(out.Keys))
	case database.OpStateCas:
		if out.NewVersion == nil {
			fmt.Printf("[%d] %s: conflict\n", i, c.Op)
		} else {
			fmt.Printf("[%d] %s: version=%d\n", i, c.Op, *out.NewVersion)
		}
	default:
		fmt.Printf("[%d] %s: ok\n", i, c.Op)
	}
}

func init() {
	execCmd.Flags().String("file", "", "YAML manifest of commands")
}
