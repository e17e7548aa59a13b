package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/hernaezTlon/x-following-cleaner/pkg/auth"
	"github.com/hernaezTlon/x-following-cleaner/pkg/config"
	"github.com/hernaezTlon/x-following-cleaner/pkg/dom"
	"github.com/hernaezTlon/x-following-cleaner/pkg/engine"
	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
	"github.com/hernaezTlon/x-following-cleaner/pkg/models"
	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
	"github.com/hernaezTlon/x-following-cleaner/pkg/twitter"
)

// app holds the wired-up engine stack shared by the run-style commands.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    *store.FileStore
	page     *dom.ChromePage
	sink     *engine.ChannelSink
	ctrl     *engine.Controller
	username string

	printerDone chan struct{}
}

// newApp loads configuration, resolves the session, optionally attaches to a
// browser, and wires the engines behind a controller.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.GetLogger()

	st, err := store.NewFileStore(cfg.Storage.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	if err := engine.SeedDefaults(st); err != nil {
		return nil, err
	}

	cookie := cfg.Session.Cookie
	username := cfg.Session.Username
	userAgent := cfg.Session.UserAgent
	if cookie == "" {
		if mgr, err := auth.NewManager(); err == nil {
			if session, err := mgr.RetrieveDefault(); err == nil {
				cookie = session.CookieHeader()
				if username == "" {
					username = session.Username
				}
				if session.UserAgent != "" {
					userAgent = session.UserAgent
				}
			}
		}
	}

	var page *dom.ChromePage
	if cfg.Browser.DebugURL != "" {
		page, err = dom.Connect(ctx, cfg.Browser.DebugURL, log)
		if err != nil {
			log.WithError(err).Warn("Browser attach failed, continuing without DOM fallback")
			page = nil
		}
	}

	// An attached browser can supply what configuration did not: the
	// session cookie (auth_token is HttpOnly, so only the browser has it)
	// and the logged-in username.
	if page != nil {
		if cookie == "" {
			if c, err := page.CookieHeader(ctx); err == nil && c != "" {
				cookie = c
				log.Info("Session cookie pulled from attached browser")
			}
		}
		if username == "" {
			if u, err := dom.LoggedInUsername(ctx, page); err == nil {
				username = u
				log.WithField("username", u).Info("Logged-in username detected from browser")
			}
		}
	}

	if cookie == "" {
		return nil, fmt.Errorf("no X session configured; run 'xfc auth login', set XFC_SESSION_COOKIE, or attach a browser")
	}
	if username == "" {
		return nil, fmt.Errorf("could not determine whose follow-list to scan; set session.username or XFC_USERNAME")
	}

	client := twitter.NewClient(cookie, userAgent, log)
	registry := twitter.NewRegistry()

	// Query-id recovery needs live script bundles, which only a browser
	// session can enumerate. Without one the seeded defaults have to do.
	var refresher engine.Refresher
	if page != nil {
		refresher = twitter.NewResolver(client, registry, page, cfg.Resolver.MinRefreshInterval, log)
	}

	index := models.FollowingIndex{}
	_ = store.GetJSON(st, store.KeyFollowingIndex, &index)

	var p dom.Page
	if page != nil {
		p = page
	}
	scroll := dom.ScrollOptions{
		Delay:         cfg.Browser.ScrollDelay,
		MaxScrolls:    cfg.Browser.MaxScrolls,
		StableScrolls: cfg.Browser.StableScrolls,
	}

	sink := engine.NewChannelSink(256)
	cascade := engine.NewCascade(client, registry, refresher, index, cfg.Scan.TimelinePageSize, log)
	if page != nil {
		cascade.SetPage(page)
	}
	collector := engine.NewCollector(client, p, st, scroll, cfg.Scan.MaxFriendPages, sink, log)
	scanEng := engine.NewScanEngine(st, cascade, collector, cfg.Scan, sink, log)
	unfollowEng := engine.NewUnfollowEngine(st, client, cascade, p, scroll, cfg.Unfollow,
		cfg.Scan.SaveEvery, cfg.Scan.SaveInterval, sink, log)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		page:     page,
		sink:     sink,
		ctrl:     engine.NewController(scanEng, unfollowEng, username, log),
		username: username,
	}, nil
}

// Close detaches from the browser if one was attached.
func (a *app) Close() {
	if a.page != nil {
		a.page.Close()
	}
}

// startPrinter renders engine events to stdout until the sink closes.
func (a *app) startPrinter() {
	a.printerDone = make(chan struct{})
	go func() {
		defer close(a.printerDone)
		for ev := range a.sink.C {
			a.printEvent(ev)
		}
	}()
}

// finishPrinter waits for queued events to drain. Call only after the
// controller reports all jobs finished.
func (a *app) finishPrinter() {
	close(a.sink.C)
	<-a.printerDone
}

func (a *app) printEvent(ev engine.Event) {
	switch p := ev.Payload.(type) {
	case engine.ScanProgress:
		if p.Status == "collecting" {
			fmt.Printf("\rCollecting follow-list... %d accounts", p.Current)
			return
		}
		fmt.Printf("\rChecking %d/%d  inactive: %d  skipped: %d  [%s]        ",
			p.Current, p.Total, p.InactiveFound, p.SkippedFound, p.CurrentAccount)
	case engine.ScanComplete:
		fmt.Println()
		printScanResults(p.Results, p.Skipped)
	case engine.UnfollowProgress:
		fmt.Printf("\rUnfollowing %d/%d", p.Current, p.Total)
	case engine.UnfollowComplete:
		fmt.Println()
		fmt.Printf("Unfollowed %d account(s).\n", p.Unfollowed)
		for _, u := range p.Usernames {
			fmt.Printf("  - @%s\n", u)
		}
		if len(p.Skipped) > 0 {
			fmt.Printf("Could not unfollow %d account(s):\n", len(p.Skipped))
			for _, s := range p.Skipped {
				fmt.Printf("  - @%s (%s)\n", s.Username, s.Reason)
			}
		}
	case engine.ErrorEvent:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", p.Message)
	case models.DebugEntry:
		a.log.DebugWithFields(p.Message, map[string]interface{}{"username": p.Username})
	}
}

// printScanResults renders the inactive list, most stale first.
func printScanResults(results []models.InactiveResult, skipped []models.SkippedResult) {
	if len(results) == 0 {
		fmt.Println("No inactive accounts found.")
	} else {
		sorted := make([]models.InactiveResult, len(results))
		copy(sorted, results)
		sort.SliceStable(sorted, func(i, j int) bool {
			di, dj := -1, -1
			if sorted[i].DaysInactive != nil {
				di = *sorted[i].DaysInactive
			}
			if sorted[j].DaysInactive != nil {
				dj = *sorted[j].DaysInactive
			}
			// Unknown activity sorts first; it is the strongest signal.
			if (di < 0) != (dj < 0) {
				return di < 0
			}
			return di > dj
		})

		fmt.Printf("Found %d inactive account(s):\n\n", len(sorted))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tNAME\tLAST ACTIVE")
		for _, r := range sorted {
			fmt.Fprintf(w, "@%s\t%s\t%s\n", r.Username, r.Name, r.LastActive)
		}
		w.Flush()
		fmt.Println("\nReview the list, then run 'xfc unfollow' to act on it.")
	}

	if len(skipped) > 0 {
		fmt.Printf("\n%d account(s) could not be checked:\n", len(skipped))
		for _, s := range skipped {
			fmt.Printf("  - @%s (%s)\n", s.Username, s.Reason)
		}
		fmt.Println("Run 'xfc retry-skipped' to try them again.")
	}
}
