package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"darkroom/internal/pipeline"
	"darkroom/internal/tier"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var (
		rating      int
		keywords    []string
		description string
		people      []string
		unreviewed  bool
	)

	cmd := &cobra.Command{
		Use:   "review <asset-id>",
		Short: "Edit and mark the Silver version as reviewed",
		Long: "Review applies edits to the active Silver version and marks it reviewed\n" +
			"unless --unreviewed is passed. Only flags that are set are changed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit tier.ReviewEdit
			reviewed := !unreviewed
			edit.Reviewed = &reviewed
			if cmd.Flags().Changed("rating") {
				edit.Rating = &rating
			}
			if cmd.Flags().Changed("keywords") {
				edit.Keywords = keywords
			}
			if cmd.Flags().Changed("description") {
				edit.Description = &description
			}
			if cmd.Flags().Changed("people") {
				edit.People = people
			}
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				version, err := svc.Review(cmd.Context(), args[0], edit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, pipeline.ViewVersion(version))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reviewed %s: rating %d, keywords %s\n",
					args[0], version.Rating, strings.Join(version.Keywords, ", "))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "Star rating from 0 to 5")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "Replace keywords (comma separated)")
	cmd.Flags().StringVar(&description, "description", "", "Replace the description")
	cmd.Flags().StringSliceVar(&people, "people", nil, "Replace the people shown (comma separated)")
	cmd.Flags().BoolVar(&unreviewed, "unreviewed", false, "Clear the reviewed flag instead of setting it")
	return cmd
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <asset-id>",
		Short: "Mark an asset rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				if err := svc.Reject(cmd.Context(), args[0], reason); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"asset_id": args[0], "rejected": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in history")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "delete <asset-id>...",
		Short: "Delete every file version of the given assets",
		Long:  "Delete removes all tier files and sidecars. The asset's history is kept.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("delete is irreversible; pass --yes to confirm")
			}
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				results := svc.BulkDelete(cmd.Context(), args)
				failed := 0
				rows := make([][]string, 0, len(results))
				type jsonResult struct {
					AssetID string   `json:"asset_id"`
					Removed []string `json:"removed,omitempty"`
					Error   string   `json:"error,omitempty"`
				}
				out := make([]jsonResult, 0, len(results))
				for _, r := range results {
					item := jsonResult{AssetID: r.AssetID, Removed: r.Removed}
					status := strconv.Itoa(len(r.Removed)) + " files removed"
					if r.Err != nil {
						failed++
						item.Error = r.Err.Error()
						status = "error: " + r.Err.Error()
					}
					out = append(out, item)
					rows = append(rows, []string{r.AssetID, status})
				}
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, map[string]any{"results": out}); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Asset", "Result"}, rows, nil))
				}
				if failed > 0 {
					return fmt.Errorf("delete: %d of %d assets failed", failed, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm deletion")
	return cmd
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <asset-id>",
		Short: "Copy the Gold file to the archive backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				res, err := svc.Archive(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived %s to %s (%s)\n", args[0], res.Location, res.Backend)
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <asset-id>",
		Short: "Show an asset's audit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				entries, err := svc.ListHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				views := pipeline.ViewHistory(entries)
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Timestamp, string(v.Action), string(v.Details)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Time", "Action", "Details"}, rows, nil))
				return nil
			})
		},
	}
}

func newVersionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <asset-id>",
		Short: "List an asset's file versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				versions, err := svc.Versions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				views := make([]*pipeline.VersionView, 0, len(versions))
				rows := make([][]string, 0, len(versions))
				for i := range versions {
					v := pipeline.ViewVersion(&versions[i])
					views = append(views, v)
					rows = append(rows, []string{
						v.ID, string(v.Tier), yesNo(v.Active), yesNo(v.Reviewed),
						strconv.Itoa(v.Rating), v.Path,
					})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Version", "Tier", "Active", "Reviewed", "Rating", "Path"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
