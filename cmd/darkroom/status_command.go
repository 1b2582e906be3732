package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"darkroom/internal/config"
	"darkroom/internal/daemon"
	"darkroom/internal/pipeline"
	"darkroom/internal/store"
)

// statusReport is what `darkroom status` prints. Daemon is nil when no daemon
// answered on the configured API address.
type statusReport struct {
	Library     pipeline.LibraryStatus `json:"library"`
	Daemon      *daemon.Status         `json:"daemon,omitempty"`
	DaemonError string                 `json:"daemon_error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog counts and daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var report statusReport
			err = ctx.withService(cmd, func(svc *pipeline.Service) error {
				lib, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				report.Library = lib
				return nil
			})
			if err != nil {
				return err
			}
			report.Daemon, err = fetchDaemonStatus(cmd.Context(), cfg)
			if err != nil {
				report.DaemonError = err.Error()
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			for _, line := range statusLines(report, isTerminal(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func statusLines(report statusReport, color bool) []string {
	sheet := newStatusSheet(color)
	sheet.section("Daemon")
	switch d := report.Daemon; {
	case d != nil && d.Running:
		sheet.row("Daemon", sevOK, "Running (pid %d)", d.PID)
		scan := "never"
		if !d.Dropzone.LastScan.IsZero() {
			scan = humanize.Time(d.Dropzone.LastScan)
		}
		sheet.row("Dropzone", sevInfo, "%s every %s, last scan %s, %d ingested", d.Dropzone.Dir, d.Dropzone.Interval, scan, d.Dropzone.Ingested)
		if d.Dropzone.Failed > 0 {
			sheet.row("Dropzone errors", sevWarn, "%d", d.Dropzone.Failed)
		}
	case report.DaemonError != "":
		sheet.row("Daemon", sevWarn, "Not reachable: %s", report.DaemonError)
	default:
		sheet.row("Daemon", sevInfo, "API disabled")
	}

	lib := report.Library
	sheet.section("Library")
	sheet.row("Assets", sevInfo, "%d (%d rejected)", lib.Assets, lib.Rejected)
	for _, t := range store.Tiers {
		sheet.tier(t, lib.Active[t])
	}
	quarantine := sevOK
	if lib.QuarantineFiles > 0 {
		quarantine = sevWarn
	}
	sheet.row("Quarantine", quarantine, "%d files, %s", lib.QuarantineFiles, humanize.Bytes(uint64(lib.QuarantineBytes)))

	sheet.section("Enrichment")
	if len(lib.Providers) == 0 {
		sheet.row("Providers", sevWarn, "none; enrichment uses file metadata only")
	} else {
		sheet.row("Providers", sevOK, "%s", strings.Join(lib.Providers, " -> "))
	}
	if lib.PromptVersion != "" {
		sheet.row("Prompt", sevInfo, "%s", lib.PromptVersion)
	}
	sheet.row("Faces", sevInfo, "%s", yesNo(lib.FacesEnabled))

	sheet.section("Storage")
	sheet.row("Archive", sevInfo, "%s", lib.ArchiveBackend)
	sheet.row("Database", sevInfo, "%s", lib.DatabasePath)
	return sheet.lines
}

// fetchDaemonStatus asks the daemon's API for its status. A nil status with a nil
// error means the API is disabled in the configuration.
func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (*daemon.Status, error) {
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if bind == "" {
		return nil, nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("invalid api_bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	url := "http://" + net.JoinHostPort(host, port) + "/api/status"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Daemon.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not running at %s", bind)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon answered %s", resp.Status)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}
