package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/greengrass-edge/shadow-sync/internal/cloud"
	"github.com/greengrass-edge/shadow-sync/internal/config"
	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

var flagPIDFile string

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync handler and block until terminated",
		Long: `Open the local store, start the configured sync strategy, and run
until SIGINT/SIGTERM. Sending SIGHUP reloads the config file and restarts
the sync handler with the reloaded set of enrolled shadows, without
restarting the process. The sync direction, strategy and rateLimits
settings are read only at startup.`,
		RunE: runRun,
	}

	cmd.Flags().StringVar(&flagPIDFile, "pid-file", "", "write the daemon PID to this path")

	return cmd
}

// syncRuntime bundles the pieces a Sync Handler needs, so run and sync now can
// share the wiring that builds them.
type syncRuntime struct {
	store       *sync.SQLiteStore
	cloud       *cloud.Client
	gate        *sync.CapacityGate
	topic       *sync.RejectTopic
	locks       *sync.LockRegistry
	queue       *sync.RequestQueue
	retryer     *sync.Retryer
	handler     *sync.Handler
	probeCtx    context.Context
	probeCancel context.CancelFunc
}

// buildRuntime opens the store and wires the executor/retryer/strategy/
// handler stack per the active configuration.
func buildRuntime(ctx context.Context, cc *CLIContext) (*syncRuntime, error) {
	store, err := sync.NewSQLiteStore(ctx, cc.Flags.DBPath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cloudClient := newCloudClient(cc)

	probeCtx, probeCancel := context.WithCancel(context.Background())
	go cloudClient.ProbeConnectivity(probeCtx, 0)

	locks := sync.NewLockRegistry()
	topic := sync.NewRejectTopic()
	gate := sync.NewCapacityGate(diskUsageNotifier{path: cc.Flags.DBPath}, cc.Config.MaxDiskUtilizationMegaBytes)

	go capacitySampleLoop(probeCtx, gate, cc.Logger)

	syncCfg := syncConfiguration(cc)

	executor := sync.NewRequestExecutor(store, cloudClient, locks, syncCfg.Direction, topic)
	retryer := sync.NewRetryer(executor, sync.DefaultMaxAttempts, cc.Logger)
	queue := sync.NewRequestQueue(sync.DefaultQueueCapacity, syncCfg.Direction)

	strategy := newStrategy(cc, queue, retryer, cloudClient, syncCfg)
	handler := sync.NewHandler(strategy, queue, runWorkerCount(cc), cc.Logger)

	return &syncRuntime{
		store: store, cloud: cloudClient, gate: gate, topic: topic, locks: locks,
		queue: queue, retryer: retryer, handler: handler,
		probeCtx: probeCtx, probeCancel: probeCancel,
	}, nil
}

func (rt *syncRuntime) Close() {
	rt.probeCancel()
	rt.store.Close()
}

// newStrategy builds the realTime or periodic strategy per
// config.Strategy.Type, both gated by the cloud client's connectivity
// probe.
func newStrategy(cc *CLIContext, queue *sync.RequestQueue, retryer *sync.Retryer, probe sync.ConnectivityProbe, syncCfg sync.Configuration) sync.Strategy {
	idsFn := func() []shadowid.Identity {
		return syncCfg.Identities()
	}

	if cc.Config.Strategy.Type == "periodic" {
		delay := time.Duration(cc.Config.Strategy.Delay) * time.Second
		if delay <= 0 {
			delay = 5 * time.Minute
		}

		return sync.NewPeriodicStrategy(queue, retryer, probe, idsFn, delay, cc.Logger)
	}

	return sync.NewRealtimeStrategy(queue, retryer, probe, idsFn, cc.Logger)
}

func runWorkerCount(cc *CLIContext) int {
	n := cc.Config.RateLimits.MaxTotalLocalRequestsRate
	if n <= 0 {
		return 4
	}

	return n
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer rt.Close()

	if flagPIDFile != "" {
		cleanup, err := writePIDFile(flagPIDFile)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	ctx := shutdownContext(context.Background(), cc.Logger)

	go logRejectEvents(ctx, rt.topic, cc.Logger)

	syncCfg := syncConfiguration(cc)
	if err := rt.handler.StartSyncingShadows(ctx, syncCfg); err != nil {
		return fmt.Errorf("starting sync handler: %w", err)
	}

	cc.Logger.Info("shadow-sync running",
		slog.Int("things", len(syncCfg.Things)),
		slog.String("direction", syncCfg.Direction.String()),
		slog.String("strategy", cc.Config.Strategy.Type),
	)

	sighup := sighupChannel()

	for {
		select {
		case <-ctx.Done():
			rt.handler.StopSyncingShadows()

			return nil
		case <-sighup:
			if err := reloadConfig(ctx, cc, rt); err != nil {
				cc.Logger.Error("config reload failed, keeping previous configuration", slog.String("error", err.Error()))
			}
		}
	}
}

// reloadConfig re-reads the config file and hands the new sync
// configuration to the running handler (stop-swap-start). The executor,
// queue and strategy built at startup keep their direction, strategy type
// and rate limits.
func reloadConfig(ctx context.Context, cc *CLIContext, rt *syncRuntime) error {
	cfg, err := config.Load(cc.Flags.ConfigPath, cc.Logger)
	if err != nil {
		return err
	}

	cc.Config = cfg

	newCfg := config.ToSyncConfiguration(cfg)

	cc.Logger.Info("reloading configuration", slog.Int("things", len(newCfg.Things)))

	return rt.handler.ApplyConfiguration(ctx, newCfg)
}

// logRejectEvents subscribes to topic and logs each terminal-failure
// notification until ctx is canceled, standing in for the IPC subscriber a
// real host runtime would register.
func logRejectEvents(ctx context.Context, topic *sync.RejectTopic, logger *slog.Logger) {
	events, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			logger.Warn("shadow sync rejected",
				slog.String("identity", ev.Identity.String()),
				slog.String("error", ev.Error.Error()),
				slog.String("client_token", ev.ClientToken),
			)
		}
	}
}

// diskUsageNotifier reports the on-disk size of the SQLite store file,
// satisfying sync.DiskSpaceNotifier.
type diskUsageNotifier struct {
	path string
}

func (n diskUsageNotifier) CurrentUsageBytes() (int64, error) {
	info, err := os.Stat(n.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	return info.Size(), nil
}

// waitForQueueDrain polls the queue until it is empty or a bounded timeout
// elapses, for one-shot commands that need the queue to finish draining
// before the process exits.
func waitForQueueDrain(ctx context.Context, rt *syncRuntime) {
	deadline := time.Now().Add(30 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rt.queue.RemainingCapacity() >= sync.DefaultQueueCapacity {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				return
			}
		}
	}
}

// capacitySampleLoop refreshes gate on a single dedicated goroutine, per
// CapacityGate's documented sampling discipline.
func capacitySampleLoop(ctx context.Context, gate *sync.CapacityGate, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		if err := gate.Sample(); err != nil {
			logger.Warn("disk usage sample failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
