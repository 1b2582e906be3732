package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"darkroom/internal/config"
	"darkroom/internal/pipeline"
	"darkroom/internal/store"
	"darkroom/internal/tier"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var removeSource bool
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Catalogue photos as new Bronze assets",
		Long: "Ingest copies each file into the Bronze tier. Directories are expanded to the\n" +
			"configured ingest extensions. Duplicates and unreadable files are quarantined.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			paths, err := collectPaths(args, cfg.Ingest.Extensions, recursive)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files with extensions %s found", strings.Join(cfg.Ingest.Extensions, ", "))
			}
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				results := svc.IngestBatch(cmd.Context(), paths, tier.IngestOptions{RemoveSource: removeSource})
				return renderBatch(cmd, ctx, "ingest", results)
			})
		},
	}
	cmd.Flags().BoolVar(&removeSource, "remove-source", false, "Delete source files after a successful ingest")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <asset-id>...",
		Short: "Run enrichment and promote assets to Silver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				return renderBatch(cmd, ctx, "enrich", svc.EnrichBatch(cmd.Context(), args))
			})
		},
	}
}

func newPromoteCommand(ctx *commandContext) *cobra.Command {
	var tierFlag string

	cmd := &cobra.Command{
		Use:   "promote <asset-id>...",
		Short: "Promote assets to a higher tier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := store.ParseTier(tierFlag)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				return renderBatch(cmd, ctx, "promote", svc.PromoteBatch(cmd.Context(), args, target))
			})
		},
	}
	cmd.Flags().StringVarP(&tierFlag, "tier", "t", string(store.TierSilver), "Target tier (silver or gold)")
	return cmd
}

func newDemoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "demote <asset-id>",
		Short: "Deactivate the asset's highest active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				version, err := svc.Demote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"asset_id": args[0], "active": pipeline.ViewVersion(version)})
				}
				out := cmd.OutOrStdout()
				if version == nil {
					fmt.Fprintf(out, "Demoted %s; no active versions remain\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Demoted %s; active tier is now %s (%s)\n", args[0], version.Tier, version.ID)
				return nil
			})
		},
	}
}

// renderBatch prints per-item results and fails the command when any item
// failed, so scripts can rely on the exit status.
func renderBatch(cmd *cobra.Command, ctx *commandContext, operation string, results []pipeline.ItemResult) error {
	failed := 0
	for _, r := range results {
		if r.Status == pipeline.StatusError {
			failed++
		}
	}
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, map[string]any{"results": results, "failed": failed}); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			detail := r.Detail
			switch {
			case r.Status == pipeline.StatusError:
				detail = fmt.Sprintf("%s: %s", r.Kind, r.Error)
			case r.DuplicateOf != "":
				detail = "duplicate of " + r.DuplicateOf
			}
			rows = append(rows, []string{r.Input, string(r.Status), r.AssetID, detail})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Input", "Status", "Asset", "Detail"}, rows, nil))
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d items failed", operation, failed, len(results))
	}
	return nil
}

// collectPaths expands directory arguments to files whose extension is in
// exts. Plain file arguments are kept as given.
func collectPaths(args, exts []string, recursive bool) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	var paths []string
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			// Missing files are reported per item by the pipeline.
			paths = append(paths, path)
			continue
		}
		if !info.IsDir() {
			paths = append(paths, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != path && (!recursive || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !allowed[strings.ToLower(filepath.Ext(d.Name()))] {
				return nil
			}
			paths = append(paths, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
	}
	return paths, nil
}
