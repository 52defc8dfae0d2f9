package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/linkcheck"
	"github.com/referencias-work/curator-cli/internal/model"
)

var (
	checkJSON bool
	checkAll  bool
)

var checkImagesCmd = &cobra.Command{
	Use:   "check-images",
	Short: "Check that stored thumbnail URLs still resolve",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{policy: batchPolicy(cfg.Enrich), withStore: true})
		if err != nil {
			return err
		}
		defer env.Close()

		db, err := env.Store.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "check-images: load")
		}

		items := thumbnailItems(db.Items)
		zap.L().Info("check-images: checking", zap.Int("items", len(items)))
		results := env.Checker.CheckAll(ctx, items)

		out := results
		if !checkAll {
			out = broken(results)
		}
		w := cmd.OutOrStdout()
		if checkJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		byID := make(map[string]string, len(items))
		for _, it := range items {
			byID[it.ID] = it.URL
		}
		for _, r := range out {
			fmt.Fprintf(w, "%-6t %3d  %s  %s\n", r.OK, r.Status, r.ID, byID[r.ID])
		}
		fmt.Fprintf(w, "%d checked, %d broken\n", len(results), len(broken(results)))
		return nil
	},
}

func init() {
	checkImagesCmd.Flags().BoolVar(&checkJSON, "json", false, "print results as JSON")
	checkImagesCmd.Flags().BoolVar(&checkAll, "all", false, "list every result, not only broken ones")
	rootCmd.AddCommand(checkImagesCmd)
}

// thumbnailItems lists the items that carry a thumbnail URL.
func thumbnailItems(refs []model.Reference) []linkcheck.Item {
	var items []linkcheck.Item
	for _, r := range refs {
		if u := model.StringValue(r.ThumbnailURL); u != "" {
			items = append(items, linkcheck.Item{ID: r.ID, URL: u})
		}
	}
	return items
}

func broken(results []linkcheck.Result) []linkcheck.Result {
	out := make([]linkcheck.Result, 0, len(results))
	for _, r := range results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}
