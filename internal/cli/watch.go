package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const watchDebounce = 300 * time.Millisecond

var watchSchedule string

var integrityWatchCmd = &cobra.Command{
	Use:   "watch <path>...",
	Short: "Re-run the integrity scan whenever watched files change",
	Long: `Watch runs an integrity scan once, then again every time a file under
the given paths is written, created, removed, or renamed. Bursts of
events are coalesced into a single scan.

With --schedule a full scan also runs on a cron expression, which
catches changes made while the watcher was not running.

Example:
  codewarden integrity watch ./src
  codewarden integrity watch ./src ./config --schedule "@every 30m"
  codewarden integrity watch . --schedule "0 */6 * * *" --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIntegrityWatch,
}

func init() {
	integrityWatchCmd.Flags().StringVar(&watchSchedule, "schedule", "",
		"cron expression for periodic full scans (e.g. \"@every 1h\")")
}

func runIntegrityWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	storagePath, err := getStoragePath(cfg.StorageDir)
	if err != nil {
		return err
	}
	for _, root := range args {
		if err := addWatchRecursive(watcher, root, storagePath); err != nil {
			return &ValidationError{Message: fmt.Sprintf("watch %s: %v", root, err)}
		}
	}

	// cron jobs run on their own goroutine; hand off to the loop so the
	// monitor only ever has one caller
	ticks := make(chan struct{}, 1)
	if watchSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(watchSchedule, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}); err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid cron expression %q: %v", watchSchedule, err)}
		}
		c.Start()
		defer c.Stop()
		logVerbose("Scheduled full scans: %s", watchSchedule)
	}

	return watchLoop(ctx, watcher, ticks, storagePath, func(reason string) {
		logVerbose("Integrity scan (%s)", reason)
		if err := watchScan(ctx, args); err != nil && ctx.Err() == nil {
			logError("Integrity scan failed: %v", err)
		}
	})
}

// watchLoop serializes every scan: the initial one, debounced file
// events, and scheduled ticks. It returns when ctx is done.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, ticks <-chan struct{}, storagePath string, scan func(reason string)) error {
	scan("startup")

	var debounce <-chan time.Time
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isUnder(ev.Name, storagePath) {
				continue
			}
			logDebug("Event %s on %s", ev.Op, ev.Name)
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addWatchRecursive(watcher, ev.Name, storagePath); err != nil {
						logError("Failed to watch %s: %v", ev.Name, err)
					}
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			debounce = timer.C

		case <-debounce:
			debounce = nil
			scan("change")

		case <-ticks:
			scan("schedule")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logError("Watch error: %v", err)
		}
	}
}

// watchScan runs one integrity scan over paths and writes the report
func watchScan(ctx context.Context, paths []string) error {
	loaded, err := newCollector(integrityExclude, 0, 0).Load(ctx, paths)
	if err != nil {
		return err
	}
	report, err := checkIntegrity(ctx, paths, loaded.Files)
	if err != nil {
		return err
	}
	if report.NewViolations == 0 {
		logVerbose("No new violations (%d pending)", report.Violations)
		return nil
	}
	return writeProvenance(report)
}

// addWatchRecursive adds root and every directory below it, skipping
// VCS metadata and the storage directory
func addWatchRecursive(w *fsnotify.Watcher, root, storagePath string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(root)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != root && (name == ".git" || name == "node_modules" || isUnder(p, storagePath)) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

// isUnder reports whether p is dir or inside it
func isUnder(p, dir string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	return abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator))
}
