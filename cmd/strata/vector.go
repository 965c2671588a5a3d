package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/strata-systems/strata/pkg/types"
)

var vectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Vector collection operations",
}

// parseEmbedding parses "0.1,0.2,0.3" into a float32 slice.
func parseEmbedding(arg string) ([]float32, error) {
	parts := strings.Split(arg, ",")
	emb := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d (%q): %w", i, p, err)
		}
		emb[i] = float32(f)
	}
	return emb, nil
}

var vectorCreateCmd = &cobra.Command{
	Use:   "create <collection> <dimension> <metric>",
	Short: "Create a collection (metric: cosine, euclidean, dot_product)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		dim, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("dimension %q: %w", args[1], err)
		}
		_, err = db.VectorCreateCollection(args[0], dim, types.DistanceMetric(args[2]))
		return err
	},
}

var vectorUpsertCmd = &cobra.Command{
	Use:   "upsert <collection> <key> <embedding>",
	Short: "Insert or overwrite a vector (embedding: comma-separated floats)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		emb, err := parseEmbedding(args[2])
		if err != nil {
			return err
		}
		_, err = db.VectorUpsert(args[0], args[1], emb, nil)
		return err
	},
}

var vectorGetCmd = &cobra.Command{
	Use:   "get <collection> <key>",
	Short: "Read one vector",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		entry, err := db.VectorGet(args[0], args[1])
		if err != nil {
			return err
		}
		if entry == nil {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Printf("%s\t%v\n", entry.Key, entry.Embedding)
		return nil
	},
}

var vectorSearchCmd = &cobra.Command{
	Use:   "search <collection> <query> <k>",
	Short: "Nearest-neighbor search",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		query, err := parseEmbedding(args[1])
		if err != nil {
			return err
		}
		k, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("k %q: %w", args[2], err)
		}
		results, err := db.VectorSearch(args[0], query, k)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s\t%g\n", r.Key, r.Score)
		}
		return nil
	},
}

func init() {
	vectorCmd.AddCommand(vectorCreateCmd, vectorUpsertCmd, vectorGetCmd, vectorSearchCmd)
	rootCmd.AddCommand(vectorCmd)
}
