package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/eiannone/keyboard"
	"github.com/jszwec/csvutil"
	"github.com/urfave/cli/v2"
	"github.com/vac-tools/vacsync/internal/catalog"
	"github.com/vac-tools/vacsync/internal/config"
	"github.com/vac-tools/vacsync/internal/db"
	"github.com/vac-tools/vacsync/internal/status"
	vacsync "github.com/vac-tools/vacsync/internal/sync"
	"github.com/vac-tools/vacsync/pkg/models"
	"github.com/vac-tools/vacsync/pkg/utils"
	"github.com/vac-tools/vacsync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "vacsync",
		Usage:                "Visual Approach Chart catalog sync and download tool",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: config.DefaultPath(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:   "init",
				Usage:  "Write a default config file",
				Action: initConfig,
			},
			{
				Name:  "list",
				Usage: "Refresh the catalog and list charts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "search",
						Usage: "Filter by OACI code or city name",
					},
				},
				Action: listCharts,
			},
			{
				Name:      "sync",
				Usage:     "Download missing and stale charts (all, or the given OACI codes)",
				ArgsUsage: "[OACI...]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel download workers",
					},
				},
				Action: syncCharts,
			},
			{
				Name:      "delete",
				Usage:     "Delete a locally downloaded chart",
				ArgsUsage: "OACI",
				Action:    deleteChart,
			},
			{
				Name:   "status",
				Usage:  "Show catalog and download statistics",
				Action: showStatus,
			},
			{
				Name:  "export",
				Usage: "Export the chart list to CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Usage:    "Path of the CSV file to write",
						Required: true,
					},
				},
				Action: exportCSV,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openEngine wires config, database, catalog client, status store and engine
// together for a single CLI invocation.
func openEngine(c *cli.Context, onProgress func(vacsync.Event)) (*vacsync.Syncer, *db.DB, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if w := c.Int("workers"); w > 0 {
		cfg.Workers = w
	}
	if cfg.CatalogURL == "" {
		return nil, nil, fmt.Errorf("catalog_url is not set; edit %s or set VACSYNC_CATALOG_URL", c.String("config"))
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	client := catalog.New(cfg.CatalogURL, cfg.CatalogFormat, cfg.HTTPTimeout())
	syncer, err := vacsync.NewSyncer(cfg, database, client, status.NewStore(), onProgress)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return syncer, database, nil
}

// refresh fetches the catalog, falling back to the local index alone when
// the remote side is unreachable.
func refresh(c *cli.Context, syncer *vacsync.Syncer) error {
	if err := syncer.Refresh(c.Context); err != nil {
		if errors.Is(err, models.ErrNetwork) || errors.Is(err, models.ErrParse) {
			log.Printf("Warning: catalog unavailable (%v), showing local charts only", err)
			return syncer.RefreshLocal()
		}
		return err
	}
	return nil
}

func initConfig(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func listCharts(c *cli.Context) error {
	syncer, database, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := refresh(c, syncer); err != nil {
		return err
	}

	search := strings.ToLower(c.String("search"))
	fmt.Printf("%-6s %-24s %-12s %-12s %s\n", "OACI", "CITY", "LOCAL", "REMOTE", "STATE")
	for _, st := range syncer.Snapshot() {
		if search != "" &&
			!strings.Contains(strings.ToLower(st.OACI), search) &&
			!strings.Contains(strings.ToLower(st.City), search) {
			continue
		}
		state := string(st.State)
		if st.Orphaned {
			state = "orphaned"
		}
		local := st.LocalVersion
		if local == "" {
			local = "-"
		}
		remote := st.RemoteVersion
		if remote == "" {
			remote = "-"
		}
		fmt.Printf("%-6s %-24s %-12s %-12s %s\n", st.OACI, st.City, local, remote, state)
	}
	return nil
}

func syncCharts(c *cli.Context) error {
	var bar *pb.ProgressBar
	onProgress := func(ev vacsync.Event) {
		if bar == nil {
			return
		}
		switch ev.State {
		case models.DownloadSucceeded, models.DownloadFailed:
			bar.Increment()
		}
	}

	syncer, database, err := openEngine(c, onProgress)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := syncer.Refresh(c.Context); err != nil {
		return err
	}

	targets := c.Args().Slice()
	if len(targets) == 0 {
		for _, st := range syncer.Snapshot() {
			if st.State == models.StateMissing || st.State == models.StateStale {
				targets = append(targets, st.OACI)
			}
		}
	}
	if len(targets) == 0 {
		fmt.Println("All charts are up to date")
		return nil
	}

	fmt.Printf("Downloading %d charts...\n", len(targets))
	start := time.Now()
	bar = pb.StartNew(len(targets))

	batch, err := syncer.Download(c.Context, targets)
	if err != nil {
		bar.Finish()
		return err
	}

	// Esc, q or Ctrl+C abandons the remaining downloads. Open fails when
	// stdin is not a terminal; the sync then just runs to completion.
	if kbErr := keyboard.Open(); kbErr == nil {
		defer keyboard.Close()
		fmt.Println("Press Esc or q to cancel")
		go func() {
			for {
				char, key, kbErr := keyboard.GetKey()
				if kbErr != nil {
					return
				}
				if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC || char == 'q' {
					batch.Cancel()
					return
				}
			}
		}()
	}

	results := batch.Wait()
	bar.Finish()

	var failed int
	for _, oaci := range targets {
		if resErr := results[oaci]; resErr != nil {
			failed++
			log.Printf("Failed %s: %v", oaci, resErr)
		}
	}
	fmt.Printf("Done: %d succeeded, %d failed in %s\n",
		len(targets)-failed, failed, utils.FormatDuration(time.Since(start)))
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(targets))
	}
	return nil
}

func deleteChart(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: vacsync delete OACI")
	}
	oaci := c.Args().First()

	syncer, database, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := syncer.Delete(oaci); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", oaci)
	return nil
}

func showStatus(c *cli.Context) error {
	syncer, database, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := refresh(c, syncer); err != nil {
		return err
	}

	var total, upToDate, stale, missing, orphaned int
	var diskSize int64
	for _, st := range syncer.Snapshot() {
		total++
		switch {
		case st.Orphaned:
			orphaned++
		case st.State == models.StateUpToDate:
			upToDate++
		case st.State == models.StateStale:
			stale++
		default:
			missing++
		}
		if st.FilePath != "" {
			if info, err := os.Stat(st.FilePath); err == nil {
				diskSize += info.Size()
			}
		}
	}

	fmt.Printf("Charts:     %d\n", total)
	fmt.Printf("Up to date: %d\n", upToDate)
	fmt.Printf("Stale:      %d\n", stale)
	fmt.Printf("Missing:    %d\n", missing)
	fmt.Printf("Orphaned:   %d\n", orphaned)
	fmt.Printf("Disk usage: %s\n", utils.FormatSize(diskSize))
	return nil
}

// exportRow is the CSV shape of one chart status line.
type exportRow struct {
	OACI          string `csv:"oaci"`
	City          string `csv:"city"`
	LocalVersion  string `csv:"local_version"`
	RemoteVersion string `csv:"remote_version"`
	State         string `csv:"state"`
	Orphaned      bool   `csv:"orphaned"`
}

func exportCSV(c *cli.Context) error {
	syncer, database, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := refresh(c, syncer); err != nil {
		return err
	}

	rows := make([]exportRow, 0)
	for _, st := range syncer.Snapshot() {
		rows = append(rows, exportRow{
			OACI:          st.OACI,
			City:          st.City,
			LocalVersion:  st.LocalVersion,
			RemoteVersion: st.RemoteVersion,
			State:         string(st.State),
			Orphaned:      st.Orphaned,
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode CSV: %w", err)
	}
	if err := os.WriteFile(c.String("output"), data, 0644); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	fmt.Printf("Exported %d charts to %s\n", len(rows), c.String("output"))
	return nil
}
