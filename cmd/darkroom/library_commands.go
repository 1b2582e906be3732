package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"darkroom/internal/burst"
	"darkroom/internal/pipeline"
)

func newBurstsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bursts",
		Short: "Burst and duplicate classification",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "analyze",
		Short: "Classify every active version in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				report, err := svc.AnalyzeLibrary(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderGroups(report.Groups))
				if len(report.Duplicates)+len(report.NearDuplicates) > 0 {
					fmt.Fprintln(out, renderPairs(report))
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "classify <version-id>...",
		Short: "Group the given versions into bursts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				groups, err := svc.ClassifyBurst(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, groups)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderGroups(groups))
				return nil
			})
		},
	})
	return cmd
}

func renderGroups(groups []burst.Group) string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.ID,
			strconv.Itoa(len(g.VersionIDs)),
			g.Representative,
			strconv.FormatFloat(g.Confidence, 'f', 2, 64),
			strings.Join(g.Evidence, ", "),
		})
	}
	return renderTable(
		[]string{"Group", "Frames", "Representative", "Confidence", "Evidence"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func renderPairs(report burst.Report) string {
	rows := make([][]string, 0, len(report.Duplicates)+len(report.NearDuplicates))
	for _, p := range report.Duplicates {
		rows = append(rows, []string{"duplicate", p.A, p.B, strconv.FormatFloat(p.Similarity, 'f', 2, 64)})
	}
	for _, p := range report.NearDuplicates {
		rows = append(rows, []string{"near-duplicate", p.A, p.B, strconv.FormatFloat(p.Similarity, 'f', 2, 64)})
	}
	return renderTable([]string{"Kind", "Version A", "Version B", "Similarity"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Rebuild the catalog from metadata embedded in Gold files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				report, err := svc.SeedFromGold(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					failures := make([]map[string]string, 0, len(report.Failures))
					for _, f := range report.Failures {
						failures = append(failures, map[string]string{"path": f.Path, "error": f.Err.Error()})
					}
					return writeJSON(cmd, map[string]any{
						"scanned":  report.Scanned,
						"restored": report.Restored,
						"skipped":  report.Skipped,
						"failures": failures,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d Gold files: %d restored, %d skipped, %d failed\n",
					report.Scanned, report.Restored, report.Skipped, len(report.Failures))
				for _, f := range report.Failures {
					fmt.Fprintf(out, "  %s: %v\n", f.Path, f.Err)
				}
				return nil
			})
		},
	}
}

func newFacesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "faces <asset-id>",
		Short: "Detect faces in the asset's highest active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				found, err := svc.DetectFaces(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, found)
				}
				rows := make([][]string, 0, len(found))
				for i, f := range found {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						fmt.Sprintf("%.2f,%.2f %.2fx%.2f", f.Box.X, f.Box.Y, f.Box.W, f.Box.H),
						strconv.FormatFloat(f.Confidence, 'f', 2, 64),
						f.Person,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Box", "Confidence", "Person"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newPeopleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "people",
		Short: "Manage relationships between people",
	}

	var kind string
	link := &cobra.Command{
		Use:   "link <person> <person>",
		Short: "Record a relationship",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				rel, err := svc.LinkPeople(cmd.Context(), args[0], args[1], kind)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, relationshipView(rel.A, rel.B, rel.Kind, rel.CreatedAt))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s and %s (%s)\n", rel.A, rel.B, rel.Kind)
				return nil
			})
		},
	}
	link.Flags().StringVar(&kind, "kind", "related", "Relationship kind")

	var unlinkKind string
	unlink := &cobra.Command{
		Use:   "unlink <person> <person>",
		Short: "Remove a relationship",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				if err := svc.UnlinkPeople(cmd.Context(), args[0], args[1], unlinkKind); err != nil {
					return err
				}
				if !ctx.jsonOutput() {
					fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s and %s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
	unlink.Flags().StringVar(&unlinkKind, "kind", "related", "Relationship kind")

	list := &cobra.Command{
		Use:   "list <person>",
		Short: "List a person's relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(svc *pipeline.Service) error {
				rels, err := svc.Relationships(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				views := make([]map[string]string, 0, len(rels))
				rows := make([][]string, 0, len(rels))
				for _, rel := range rels {
					views = append(views, relationshipView(rel.A, rel.B, rel.Kind, rel.CreatedAt))
					rows = append(rows, []string{rel.A, rel.B, rel.Kind})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Person", "Person", "Kind"}, rows, nil))
				return nil
			})
		},
	}

	cmd.AddCommand(link, unlink, list)
	return cmd
}

func relationshipView(a, b, kind string, created time.Time) map[string]string {
	return map[string]string{
		"a":          a,
		"b":          b,
		"kind":       kind,
		"created_at": created.UTC().Format(time.RFC3339),
	}
}
