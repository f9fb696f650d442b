package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/skyrush-games/client/internal/achievements"
	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/boot"
	"github.com/skyrush-games/client/internal/clock"
	"github.com/skyrush-games/client/internal/config"
	"github.com/skyrush-games/client/internal/metrics"
	"github.com/skyrush-games/client/internal/phase"
	"github.com/skyrush-games/client/internal/purchase"
	"github.com/skyrush-games/client/internal/runsim"
	"github.com/skyrush-games/client/internal/session"
	"github.com/skyrush-games/client/internal/storage"
	"github.com/skyrush-games/client/internal/userdata"
)

var (
	flagMode     string
	flagDuration time.Duration
	flagFPS      int
	flagVerbose  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the client and play one session",
	Long: `Run the full client flow once: boot sequence, session grant, a
scripted run of the given duration, then result submission.

Examples:
  skyrush run
  skyrush run --mode chapter --duration 15s
  skyrush run --verbose`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVar(&flagMode, "mode", "endless", "Session mode (endless or chapter)")
	runCmd.Flags().DurationVar(&flagDuration, "duration", 30*time.Second, "How long to run the session")
	runCmd.Flags().IntVar(&flagFPS, "fps", 60, "Simulation tick rate")
	runCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}

// tokenAuth treats "we hold a backend token" as being logged in; interactive
// login lives outside this binary.
type tokenAuth struct {
	token string
}

func (a tokenAuth) Authenticated(context.Context) (bool, error) {
	return a.token != "", nil
}

// headlessStore stands in for the platform purchase SDK, which has no
// terminal-side equivalent; the processor's handshake and restore paths still
// run against it so the pipeline comes up the same way it does on device.
type headlessStore struct{}

func (headlessStore) Initialize(context.Context) error { return nil }

func (headlessStore) BeginPurchase(context.Context, string, string) error { return nil }

func (headlessStore) Acknowledge(context.Context, string) error { return nil }

func runSession(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if flagVerbose {
		logger.SetLevel(log.DebugLevel)
	}

	mode := backend.Mode(flagMode)
	if mode != backend.ModeEndless && mode != backend.ModeChapter {
		return fmt.Errorf("unknown mode %q (want endless or chapter)", flagMode)
	}
	if flagFPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}

	envCfg, err := config.LoadEnv()
	if err != nil {
		return err
	}
	dbPath := envCfg.DBPath
	if flagDBPath != "" {
		dbPath = flagDBPath
	}

	tuning, err := config.LoadTuning(flagConfig)
	if err != nil {
		return err
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	remote, err := backend.NewHTTPClient(backend.HTTPClientConfig{
		BaseURL:        envCfg.BackendURL,
		AuthToken:      envCfg.AuthToken,
		RequestTimeout: envCfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if envCfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, envCfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	cache := userdata.NewCache()
	phases := phase.NewController(logger)
	model := runsim.New(tuning)
	achv := achievements.NewService(remote, cache, m, logger)

	orch := session.NewOrchestrator(remote, phases, model, cache, store, nil, nil,
		clock.System{}, m, logger)

	refresh := func(ctx context.Context) error {
		data, err := remote.LoadUserData(ctx)
		if err != nil {
			return err
		}
		cache.Set(data)
		return nil
	}
	purchases := purchase.NewProcessor(purchase.Config{
		InitTimeout: envCfg.PurchaseInitTimeout,
		Cooldown:    envCfg.PurchaseCooldown,
	}, headlessStore{}, store, remote, refresh, nil, clock.System{}, m, logger)

	if envCfg.SnapshotWSURL != "" {
		feed := backend.NewSnapshotFeed(envCfg.SnapshotWSURL, envCfg.AuthToken, cache.Set, logger)
		feed.Start(ctx)
		defer feed.Stop()
	}

	loaders := []boot.Initializer{
		{Name: "achievements", Run: achv.Refresh},
		{Name: "purchases", Run: purchases.Initialize},
	}
	seq := boot.NewSequencer(tokenAuth{token: envCfg.AuthToken}, remote, cache, phases,
		nil, loaders, nil, logger)
	if err := seq.Run(ctx); err != nil {
		return err
	}

	orch.Events().HighScore.Subscribe(func(score int) {
		fmt.Printf("New high score: %d\n", score)
	})

	if err := orch.RequestSessionAndStart(ctx, mode); err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}

	summary := driveRun(ctx, orch, model, logger)

	fmt.Printf("Session finished: mode=%s score=%d coins=%d combo=%d boosters=%d\n",
		mode, summary.score, summary.coins, summary.maxCombo, summary.boosters)
	return nil
}

type runSummary struct {
	score    int
	coins    int
	maxCombo int
	boosters int
}

// driveRun ticks the simulation at the configured rate for the requested
// duration, feeding it a scripted pickup pattern so the coin, combo and
// booster paths all get traffic.
func driveRun(ctx context.Context, orch *session.Orchestrator, model *runsim.Model, logger *log.Logger) runSummary {
	dt := 1.0 / float64(flagFPS)
	ticker := time.NewTicker(time.Second / time.Duration(flagFPS))
	defer ticker.Stop()
	deadline := time.After(flagDuration)

	burstEvery := max(1, flagFPS/2)
	frame := 0
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted; ending session early")
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			orch.Advance(dt)
			frame++
			// A pickup burst roughly twice a second.
			if frame%burstEvery == 0 {
				model.AddCoins(3, nil)
			}
			model.BoosterUse()
		}
	}

	summary := runSummary{
		score:    model.Score(),
		coins:    model.Coins(),
		maxCombo: model.MaxCombo(),
		boosters: model.PowerUpsCollected(),
	}
	if err := orch.EndSession(context.Background(), true); err != nil {
		logger.Error("end session", "error", err)
	}
	return summary
}
