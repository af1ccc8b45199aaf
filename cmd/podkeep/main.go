package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/podkeep/podkeep/internal/config"
	"github.com/podkeep/podkeep/internal/domain"
	"github.com/podkeep/podkeep/internal/feed"
	"github.com/podkeep/podkeep/internal/library"
	"github.com/podkeep/podkeep/internal/log"
	"github.com/podkeep/podkeep/internal/search"
	"github.com/podkeep/podkeep/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

// legacyCacheFile is the pre-BoltDB cache written by earlier releases.
const legacyCacheFile = "episode_cache.json"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	force := flag.Bool("force", false, "refresh from the network even when the cache is fresh")
	limit := flag.Int("limit", 15, "maximum results to print for search")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("podkeep %s\n", Version)
		return
	}

	if err := run(flag.Args(), *force, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, force bool, limit int) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command given")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting podkeep", "version", Version)

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	policy := feed.RetryPolicy{
		MaxAttempts: cfg.Feed.MaxAttempts,
		BaseDelay:   cfg.Feed.BaseDelay(),
		Multiplier:  cfg.Feed.BackoffMultiplier,
		Profiles:    feed.DefaultProfiles(cfg.Feed.Timeout()),
	}
	source := feed.NewSource(policy, logger)

	// Create services
	librarySvc := library.NewService(source, st, library.Options{
		MinTTL:      cfg.Cache.MinTTL(),
		MaxParallel: cfg.Cache.MaxParallel,
		LegacyPath:  filepath.Join(cfg.Storage.DataDir, legacyCacheFile),
	}, logger)
	searchSvc := search.NewService(librarySvc, logger)

	// One-time rewrite of the pre-BoltDB cache
	if report, err := librarySvc.MigrateIfNeeded(); err != nil {
		logger.Warn("legacy cache migration failed", "error", err)
	} else if report.Migrated > 0 || report.Skipped > 0 {
		fmt.Printf("Migrated legacy cache: %d entries, %d skipped\n", report.Migrated, report.Skipped)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return runAdd(ctx, librarySvc, rest)
	case "remove":
		return runRemove(librarySvc, searchSvc, rest)
	case "list":
		return runList(librarySvc)
	case "episodes":
		return runEpisodes(ctx, librarySvc, searchSvc, rest, force)
	case "refresh":
		return runRefresh(ctx, librarySvc, searchSvc, rest)
	case "search":
		return runSearch(librarySvc, searchSvc, rest, limit)
	case "played":
		return runPlayed(librarySvc, searchSvc, rest)
	case "stats":
		return runStats(librarySvc)
	case "clear":
		return runClear(librarySvc)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runAdd(ctx context.Context, svc *library.Service, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: podkeep add <feed-url>")
	}
	show, err := svc.Subscribe(ctx, args[0])
	if err != nil {
		return err
	}
	count := 0
	if episodes, ok := svc.CachedEpisodes(show.ID); ok {
		count = len(episodes)
	}
	fmt.Printf("Subscribed to %s (%s), %d episodes\n", show.Title, show.ID, count)
	return nil
}

func runRemove(svc *library.Service, searchSvc *search.Service, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: podkeep remove <show>")
	}
	show, err := resolveShow(svc, searchSvc, args[0])
	if err != nil {
		return err
	}
	if err := svc.Unsubscribe(show.ID); err != nil {
		return err
	}
	fmt.Printf("Unsubscribed from %s\n", show.Title)
	return nil
}

func runList(svc *library.Service) error {
	shows := svc.Shows()
	if len(shows) == 0 {
		fmt.Println("No subscriptions. Use 'podkeep add <feed-url>' to subscribe.")
		return nil
	}
	for _, show := range shows {
		fmt.Printf("%-14s %s\n", show.ID, show.Title)
		if show.Author != "" {
			fmt.Printf("%-14s   by %s\n", "", show.Author)
		}
	}
	return nil
}

func runEpisodes(ctx context.Context, svc *library.Service, searchSvc *search.Service, args []string, force bool) error {
	if len(args) != 1 {
		return errors.New("usage: podkeep episodes <show>")
	}
	show, err := resolveShow(svc, searchSvc, args[0])
	if err != nil {
		return err
	}

	res, err := svc.Episodes(ctx, show.ID, force)
	if res == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: refresh failed, showing cached episodes: %v\n", err)
	}
	if res.Warn != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", res.Warn)
	}
	if res.Changes != nil && !res.Changes.IsEmpty() {
		fmt.Printf("Changes: %d new, %d updated, %d removed\n",
			len(res.Changes.Added), len(res.Changes.Updated), len(res.Changes.Removed))
	}

	fmt.Printf("%s - %d episodes\n", show.Title, len(res.Episodes))
	for i, ep := range res.Episodes {
		printEpisode(i+1, ep)
	}
	return nil
}

func runRefresh(ctx context.Context, svc *library.Service, searchSvc *search.Service, args []string) error {
	if len(args) > 0 {
		show, err := resolveShow(svc, searchSvc, args[0])
		if err != nil {
			return err
		}
		res, err := svc.Episodes(ctx, show.ID, true)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d episodes\n", show.Title, len(res.Episodes))
		return nil
	}

	outcomes := svc.RefreshAll(ctx)
	if len(outcomes) == 0 {
		fmt.Println("No subscriptions to refresh.")
		return nil
	}
	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
			fmt.Printf("%-30s FAILED: %v\n", out.Title, out.Err)
			continue
		}
		fmt.Printf("%-30s %d episodes\n", out.Title, out.Count)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d shows failed to refresh", failed, len(outcomes))
	}
	return nil
}

func runSearch(svc *library.Service, searchSvc *search.Service, args []string, limit int) error {
	if len(args) != 1 {
		return errors.New("usage: podkeep search <query>")
	}
	svc.Preload()
	searchSvc.Rebuild()

	results := searchSvc.Search(args[0])
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for _, r := range results {
		if r.EpisodeID == "" {
			fmt.Printf("show     %-14s %s\n", r.Key, r.Title)
			continue
		}
		fmt.Printf("episode  %-14s %s (%s)\n", r.Key, r.Title, r.ShowTitle)
	}
	return nil
}

func runPlayed(svc *library.Service, searchSvc *search.Service, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: podkeep played <show> <episode-number>")
	}
	show, err := resolveShow(svc, searchSvc, args[0])
	if err != nil {
		return err
	}
	episodes, ok := svc.CachedEpisodes(show.ID)
	if !ok {
		return domain.ErrNotCached
	}

	episodeID := args[1]
	if n, err := strconv.Atoi(args[1]); err == nil {
		if n < 1 || n > len(episodes) {
			return fmt.Errorf("episode number out of range 1..%d", len(episodes))
		}
		episodeID = episodes[n-1].ID
	}
	if err := svc.MarkPlayed(show.ID, episodeID, true); err != nil {
		return err
	}
	fmt.Println("Marked played.")
	return nil
}

func runStats(svc *library.Service) error {
	svc.Preload()
	stats := svc.Stats()
	fmt.Printf("Cached shows: %d\n", stats.TotalKeys)
	fmt.Printf("  fresh: %d\n", stats.FreshCount)
	fmt.Printf("  stale: %d\n", stats.StaleCount)
	return nil
}

func runClear(svc *library.Service) error {
	svc.InvalidateAll()
	fmt.Println("Cache cleared.")
	return nil
}

// resolveShow accepts either an exact show key or a fuzzy title query.
func resolveShow(svc *library.Service, searchSvc *search.Service, arg string) (domain.Show, error) {
	if show, ok := svc.Show(arg); ok {
		return show, nil
	}
	if show, ok := searchSvc.FindShow(arg); ok {
		return show, nil
	}
	return domain.Show{}, fmt.Errorf("no subscribed show matches %q", arg)
}

func printEpisode(n int, ep domain.Episode) {
	mark := " "
	switch ep.PlayStatus() {
	case domain.PlayStatusPlayed:
		mark = "x"
	case domain.PlayStatusInProgress:
		mark = ">"
	}
	date := ""
	if !ep.PublishedAt.IsZero() {
		date = ep.PublishedAt.Format("2006-01-02")
	}
	fmt.Printf("%4d [%s] %-10s %s (%s)\n", n, mark, date, ep.Title, ep.FormattedDuration())
}

func usage() {
	fmt.Fprintf(os.Stderr, `podkeep - offline-first podcast subscription cache

Usage:
  podkeep [flags] <command> [args]

Commands:
  add <feed-url>        subscribe to a feed and cache its episodes
  remove <show>         unsubscribe and drop cached episodes
  list                  list subscriptions
  episodes <show>       show an episode list (cached when fresh)
  refresh [show]        force-refresh one show, or all subscriptions
  search <query>        fuzzy-search cached shows and episodes
  played <show> <n>     mark an episode played
  stats                 cache freshness summary
  clear                 drop all cached episodes (subscriptions stay)

<show> is a show key from 'list', or a fuzzy title match.

Flags:
`)
	flag.PrintDefaults()
}
