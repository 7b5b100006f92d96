package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"autostats/config"
	"autostats/models"
)

const (
	MainnetID = "mainnet"

	MessageSkipped = "Data was recently updated. Skipping this run."
	MessageUpdated = "Data updated successfully"

	runLockName = "collect"
)

// RowMirror receives a copy of every appended row.
type RowMirror interface {
	InsertRow(ctx context.Context, record models.RowRecord) error
}

// CollectorDeps wires the collector to its collaborators. Cache, Mirror and
// Notifier are optional.
type CollectorDeps struct {
	Store    SheetStore
	Launcher BrowserLauncher
	Chain    ChainClient
	Scraper  *Scraper
	Cache    *CacheService
	Mirror   RowMirror
	Notifier Notifier
}

// Collector runs the decide, scrape and append workflow for every configured network.
type Collector struct {
	cfg      *config.Config
	store    SheetStore
	launcher BrowserLauncher
	chain    ChainClient
	scraper  *Scraper
	cache    *CacheService
	mirror   RowMirror
	notifier Notifier

	now func() time.Time
}

func NewCollector(cfg *config.Config, deps CollectorDeps) *Collector {
	scraper := deps.Scraper
	if scraper == nil {
		scraper = NewScraper(NewExtractor(DefaultStatsLocators()))
	}
	return &Collector{
		cfg:      cfg,
		store:    deps.Store,
		launcher: deps.Launcher,
		chain:    deps.Chain,
		scraper:  scraper,
		cache:    deps.Cache,
		mirror:   deps.Mirror,
		notifier: deps.Notifier,
		now:      time.Now,
	}
}

// Run performs one collection. The whole operation is retried up to
// MaxAttempts times; the row timestamp is fixed for the whole invocation.
func (c *Collector) Run(ctx context.Context) (*models.RunResult, error) {
	if c.cache != nil {
		token, ok, err := c.cache.AcquireLock(ctx, runLockName, c.cfg.LockTTLDuration())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := c.cache.ReleaseLock(context.Background(), runLockName, token); err != nil {
				log.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	if deadline := c.cfg.DeadlineDuration(); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	runTS := c.now().UTC().Truncate(time.Millisecond)
	appended := make(map[string]*models.Snapshot)

	var lastErr error
	attempts := 0
	for attempts < c.cfg.Collector.MaxAttempts {
		attempts++
		logger := log.With().Int("attempt", attempts).Logger()

		err := c.attempt(ctx, runTS, appended)
		if err == nil {
			result := c.finish(ctx, runTS, attempts, appended)
			logger.Info().Str("status", string(result.Status)).Strs("networks", result.Networks).Msg(result.Message)
			return result, nil
		}

		lastErr = err
		logger.Warn().Err(err).Msg("Collection attempt failed")
		if ctx.Err() != nil {
			break
		}
	}

	log.Error().Err(lastErr).Int("attempts", attempts).Msg("Collection failed")
	result := &models.RunResult{
		Status:    models.RunFailed,
		Message:   "Collection failed",
		Timestamp: runTS,
		Networks:  sortedKeys(appended),
		Attempts:  attempts,
		Error:     lastErr.Error(),
	}
	if c.cache != nil {
		c.cache.SetLastRun(result)
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyFailure(lastErr, attempts); err != nil {
			log.Warn().Err(err).Msg("Failed to send failure notification")
		}
	}
	return result, lastErr
}

// attempt runs decide, scrape and append once. Networks already appended in an
// earlier attempt of the same run are never appended again.
func (c *Collector) attempt(ctx context.Context, runTS time.Time, appended map[string]*models.Snapshot) error {
	decisions, err := c.Decide(ctx)
	if err != nil {
		return err
	}

	var stale []config.NetworkConfig
	for i, d := range decisions {
		if !d.ShouldUpdate {
			log.Info().Str("network", d.Network).Msg("Data was recently updated. Skipping.")
			continue
		}
		if _, done := appended[d.Sheet]; done {
			continue
		}
		stale = append(stale, c.cfg.Networks[i])
	}
	if len(stale) == 0 {
		return nil
	}

	snapshots, err := c.collect(ctx, stale, runTS)
	if err != nil {
		return err
	}

	// rows are only written once every scrape has succeeded
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, snap := range snapshots {
		g.Go(func() error {
			if err := c.store.AppendRow(gctx, snap.Sheet, snap.Row); err != nil {
				return err
			}
			mu.Lock()
			appended[snap.Sheet] = snap
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Decide reads every sheet's last timestamp concurrently and applies the freshness window.
func (c *Collector) Decide(ctx context.Context) ([]models.FreshnessDecision, error) {
	decisions := make([]models.FreshnessDecision, len(c.cfg.Networks))
	window := c.cfg.FreshnessWindow()

	g, gctx := errgroup.WithContext(ctx)
	for i, network := range c.cfg.Networks {
		g.Go(func() error {
			last, err := c.store.LastTimestamp(gctx, network.Sheet)
			if err != nil {
				return err
			}
			decisions[i] = models.FreshnessDecision{
				Network:       network.ID,
				Sheet:         network.Sheet,
				LastTimestamp: last,
				ShouldUpdate:  ShouldUpdate(last, c.now(), window),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// Scrape collects the given networks without touching the sheet.
func (c *Collector) Scrape(ctx context.Context, networks []config.NetworkConfig) ([]*models.Snapshot, error) {
	return c.collect(ctx, networks, c.now().UTC().Truncate(time.Millisecond))
}

// collect scrapes networks one after another on a single browser session.
func (c *Collector) collect(ctx context.Context, networks []config.NetworkConfig, runTS time.Time) ([]*models.Snapshot, error) {
	browser, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close browser")
		}
	}()

	snapshots := make([]*models.Snapshot, 0, len(networks))
	for _, network := range networks {
		snap, err := c.collectNetwork(ctx, browser, network, runTS)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (c *Collector) collectNetwork(ctx context.Context, browser Browser, network config.NetworkConfig, runTS time.Time) (*models.Snapshot, error) {
	stats, err := c.scraper.ScrapeStats(ctx, browser, network)
	if err != nil {
		return nil, err
	}

	conn, err := c.chain.Activate(ctx, network)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pledged, err := conn.SpacePledged(ctx)
	if err != nil {
		return nil, err
	}

	var metrics *models.DerivedMetrics
	if network.ID == MainnetID {
		fee, err := conn.TransactionByteFee(ctx)
		if err != nil {
			return nil, err
		}
		metrics, err = ComputeDerivedMetrics(pledged, fee)
		if err != nil {
			return nil, err
		}
	}

	snap := &models.Snapshot{
		Network:      network.ID,
		Sheet:        network.Sheet,
		Timestamp:    runTS,
		Stats:        stats,
		SpacePledged: pledged,
		Metrics:      metrics,
		Row:          BuildRow(runTS, stats, pledged, metrics),
	}

	ev := log.Info().Str("network", network.ID).Str("space_pledged", pledged.String())
	if metrics != nil {
		ev = ev.Str("pib", metrics.SpacePledgedPiB).Str("pb", metrics.SpacePledgedPB).Str("fee_per_gb", metrics.FeePerGB)
	}
	ev.Msg("Network data extracted")

	return snap, nil
}

// finish records a successful run in the cache, the mirror and the notifier.
// None of these can fail the run.
func (c *Collector) finish(ctx context.Context, runTS time.Time, attempts int, appended map[string]*models.Snapshot) *models.RunResult {
	result := &models.RunResult{
		Status:    models.RunSkipped,
		Message:   MessageSkipped,
		Timestamp: runTS,
		Networks:  sortedKeys(appended),
		Attempts:  attempts,
	}
	if len(appended) == 0 {
		if c.cache != nil {
			c.cache.SetLastRun(result)
		}
		return result
	}

	result.Status = models.RunSuccess
	result.Message = MessageUpdated

	snapshots := make([]*models.Snapshot, 0, len(appended))
	for _, network := range c.cfg.Networks {
		snap, ok := appended[network.Sheet]
		if !ok {
			continue
		}
		snapshots = append(snapshots, snap)

		if c.cache != nil {
			c.cache.SetLatestSnapshot(snap)
		}
		if c.mirror != nil {
			mirrorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := c.mirror.InsertRow(mirrorCtx, models.NewRowRecord(snap)); err != nil {
				log.Warn().Err(err).Str("sheet", snap.Sheet).Msg("Failed to mirror row")
			}
			cancel()
		}
	}

	if c.cache != nil {
		c.cache.SetLastRun(result)
	}
	if c.notifier != nil {
		if err := c.notifier.NotifySuccess(result, snapshots); err != nil {
			log.Warn().Err(err).Msg("Failed to send success notification")
		}
	}
	return result
}

// ResolveNetworks maps ids to configured networks, skipping unknown ones.
func (c *Collector) ResolveNetworks(ids []string) ([]config.NetworkConfig, error) {
	if len(ids) == 0 {
		return c.cfg.Networks, nil
	}
	var networks []config.NetworkConfig
	for _, id := range ids {
		network, ok := c.cfg.Network(id)
		if !ok {
			log.Warn().Str("network", id).Msg("Unknown network, skipping")
			continue
		}
		networks = append(networks, network)
	}
	if len(networks) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNetwork, ids)
	}
	return networks, nil
}

func sortedKeys(m map[string]*models.Snapshot) []string {
	return slices.Sorted(maps.Keys(m))
}
