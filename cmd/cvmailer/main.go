package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lakshyads/cv-mailer/internal/config"
	"github.com/lakshyads/cv-mailer/internal/events"
	"github.com/lakshyads/cv-mailer/internal/httpapi"
	"github.com/lakshyads/cv-mailer/internal/mail"
	"github.com/lakshyads/cv-mailer/internal/orchestrator"
	"github.com/lakshyads/cv-mailer/internal/responses"
	"github.com/lakshyads/cv-mailer/internal/scheduler"
	"github.com/lakshyads/cv-mailer/internal/secrets"
	"github.com/lakshyads/cv-mailer/internal/sheets"
	"github.com/lakshyads/cv-mailer/internal/store"
	"github.com/lakshyads/cv-mailer/internal/tracker"
)

const (
	followUpTick  = 6 * time.Hour
	responsesTick = 15 * time.Minute
)

func main() {
	// .env is optional; real deployments use the keychain + YAML config.
	_ = godotenv.Load()

	var (
		cfgPath     = flag.String("config", "", "path to config.yml (default <data-dir>/config.yml)")
		dataDir     = flag.String("data-dir", "", "data directory for db, lock and config")
		dryRun      = flag.Bool("dry-run", false, "log what would be sent without sending")
		followUps   = flag.Bool("follow-ups", false, "send due follow-ups only")
		newOnly     = flag.Bool("new", false, "process new spreadsheet rows only")
		stats       = flag.Bool("stats", false, "print statistics and exit")
		repair      = flag.Bool("repair-followups", false, "renumber historical follow-up waves (honors --dry-run)")
		serve       = flag.Bool("serve", false, "run the local API with background schedulers")
		setPassword = flag.String("set-password", "", `store a password in the keychain: "smtp" or "imap"`)
	)
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		dir = os.Getenv("CVMAILER_DATA_DIR")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("level=fatal msg=\"data dir\" err=%v", err)
	}

	path := *cfgPath
	if path == "" {
		p, err := config.EnsureUserConfig(dir)
		if err != nil {
			log.Fatalf("level=fatal msg=\"config bootstrap failed\" err=%v", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("level=fatal msg=\"config load failed\" path=%s err=%v", path, err)
	}
	cfg.App.DataDir = dir

	cfg, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		log.Printf("level=warn msg=\"config\" warning=%q", w)
	}
	if !v.OK() {
		for _, e := range v.Errors {
			log.Printf("level=error msg=\"config\" error=%q", e)
		}
		os.Exit(1)
	}

	if *setPassword != "" {
		if err := storePassword(cfg, *setPassword); err != nil {
			log.Fatalf("level=fatal msg=\"set password failed\" err=%v", err)
		}
		return
	}

	db, err := store.Open(filepath.Join(cfg.App.DataDir, "cvmailer.db"))
	if err != nil {
		log.Fatalf("level=fatal msg=\"open database failed\" err=%v", err)
	}
	defer db.Close()
	if err := store.Migrate(db.Pool); err != nil {
		log.Fatalf("level=fatal msg=\"migrate failed\" err=%v", err)
	}

	tr := tracker.New(db, tracker.Options{
		FollowUpInterval: cfg.FollowUpInterval(),
		MaxFollowUps:     cfg.FollowUp.MaxFollowUps,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *stats {
		printStats(ctx, tr)
		return
	}

	// One process at a time past this point: sends, repairs and serve mode
	// all mutate the database.
	lock := flock.New(filepath.Join(cfg.App.DataDir, "cvmailer.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("level=fatal msg=\"run lock\" err=%v", err)
	}
	if !locked {
		log.Fatalf("level=fatal msg=\"another run is in progress\"")
	}
	defer func() { _ = lock.Unlock() }()

	if *repair {
		st, err := tr.RepairFollowUpNumbers(ctx, *dryRun)
		if err != nil {
			log.Fatalf("level=fatal msg=\"repair failed\" err=%v", err)
		}
		fmt.Printf("scanned %d applications, %d changed, %d rows updated\n",
			st.ApplicationsScanned, st.ApplicationsChanged, st.RowsUpdated)
		if *dryRun {
			fmt.Println("dry run: nothing written")
		}
		return
	}

	source, err := sheets.NewCSVSource(cfg.Sheets.Dir, cfg.Sheets.DefaultSheet, cfg.Sheets.ProcessAll, cfg.Sheets.SheetNameFilter)
	if err != nil {
		log.Fatalf("level=fatal msg=\"sheets source\" err=%v", err)
	}

	hub := events.NewHub()
	runner := &orchestrator.Runner{
		Source:     source,
		Tracker:    tr,
		Sender:     newSender(cfg, db, *dryRun),
		Hub:        hub,
		SenderName: cfg.Mail.SenderName,
	}

	if *serve {
		if err := runServe(ctx, cfg, db, tr, hub, runner); err != nil {
			log.Fatalf("level=fatal msg=\"serve\" err=%v", err)
		}
		return
	}

	if !*followUps {
		if _, err := runner.ProcessNew(ctx, *dryRun); err != nil {
			log.Fatalf("level=fatal msg=\"process new failed\" err=%v", err)
		}
	}
	if !*newOnly {
		if _, err := runner.SendFollowUps(ctx, *dryRun); err != nil {
			log.Fatalf("level=fatal msg=\"follow-ups failed\" err=%v", err)
		}
	}
}

// newSender builds the SMTP sender. In dry-run mode a missing password is
// tolerated since nothing dials out.
func newSender(cfg config.Config, db *store.DB, dryRun bool) *mail.Sender {
	password, err := secrets.GetPassword(
		secrets.SMTPAccount(cfg.Mail.Username, cfg.Mail.SMTPHost), "CVMAILER_SMTP_PASSWORD")
	if err != nil {
		if !dryRun {
			log.Printf("level=warn msg=\"smtp password unavailable, sends will fail\" err=%v", err)
		}
	}
	return mail.NewSender(mail.Config{
		Host:            cfg.Mail.SMTPHost,
		Port:            cfg.Mail.SMTPPort,
		Username:        cfg.Mail.Username,
		Password:        password,
		SenderName:      cfg.Mail.SenderName,
		FromAddress:     cfg.Mail.FromAddress,
		ResumePath:      cfg.Mail.ResumePath,
		ResumeDriveLink: cfg.Mail.ResumeDriveLink,
		DailyLimit:      cfg.Rate.DailyLimit,
		DelayMin:        time.Duration(cfg.Rate.DelayMinSeconds) * time.Second,
		DelayMax:        time.Duration(cfg.Rate.DelayMaxSeconds) * time.Second,
	}, db)
}

// runServe runs the local API plus the background follow-up and response
// pollers until the context is cancelled.
func runServe(ctx context.Context, cfg config.Config, db *store.DB, tr *tracker.Tracker, hub *events.Hub, runner *orchestrator.Runner) error {
	g, ctx := errgroup.WithContext(ctx)

	mux := httpapi.NewMux(httpapi.Deps{DB: db, Tracker: tr, Hub: hub})
	handler := httpapi.Chain(mux,
		httpapi.RequestID,
		httpapi.AccessLog,
		httpapi.Recover,
		httpapi.Cors,
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("level=info msg=\"api listening\" addr=http://%s", addr)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Every(ctx, followUpTick, "follow-ups", func(ctx context.Context) error {
			_, err := runner.SendFollowUps(ctx, false)
			return err
		})
		return nil
	})

	if cfg.Responses.Enabled {
		password, err := secrets.GetPassword(
			secrets.IMAPAccount(cfg.Responses.Username, cfg.Responses.IMAPHost), "CVMAILER_IMAP_PASSWORD")
		if err != nil {
			log.Printf("level=warn msg=\"imap password unavailable, responses disabled\" err=%v", err)
		} else {
			poller := responses.NewPoller(responses.Config{
				Host:     cfg.Responses.IMAPHost,
				Port:     cfg.Responses.IMAPPort,
				Username: cfg.Responses.Username,
				Password: password,
				Mailbox:  cfg.Responses.Mailbox,
			}, db, tr, hub)
			g.Go(func() error {
				scheduler.Every(ctx, responsesTick, "responses", func(ctx context.Context) error {
					_, err := poller.RunOnce(ctx)
					return err
				})
				return nil
			})
		}
	}

	return g.Wait()
}

func printStats(ctx context.Context, tr *tracker.Tracker) {
	stats, err := tr.Statistics(ctx)
	if err != nil {
		log.Fatalf("level=fatal msg=\"stats failed\" err=%v", err)
	}

	fmt.Printf("applications: %d\n", stats.TotalApplications)

	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  %-22s %d\n", s, stats.ByStatus[s])
	}

	fmt.Printf("emails sent: %d\n", stats.TotalEmailsSent)
	fmt.Printf("follow-ups sent: %d\n", stats.FollowUpsSent)
}

func storePassword(cfg config.Config, which string) error {
	var account string
	switch which {
	case "smtp":
		account = secrets.SMTPAccount(cfg.Mail.Username, cfg.Mail.SMTPHost)
	case "imap":
		account = secrets.IMAPAccount(cfg.Responses.Username, cfg.Responses.IMAPHost)
	default:
		return fmt.Errorf("unknown password target %q (want smtp or imap)", which)
	}

	fmt.Fprintf(os.Stderr, "password for %s: ", account)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return errors.New("empty password")
	}
	if err := secrets.SetPassword(account, password); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "stored")
	return nil
}
