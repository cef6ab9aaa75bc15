package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tenex-go/tenexcore/internal/config"
	"github.com/tenex-go/tenexcore/internal/credstore"
	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/draftstore"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	"github.com/tenex-go/tenexcore/internal/ingest"
	"github.com/tenex-go/tenexcore/internal/negentropy"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
	"github.com/tenex-go/tenexcore/internal/prefs"
	"github.com/tenex-go/tenexcore/internal/projection"
	"github.com/tenex-go/tenexcore/internal/runtime"
	keystore "github.com/tenex-go/tenexcore/internal/signer"
)

// session is one CLI invocation's wired core: every long-lived
// component CoreRuntime owns, plus the cleanup steps spec 5's shutdown
// order requires (stop accepting commands -> cancel subscriptions ->
// drop the store write handle).
type session struct {
	store  eventstore.Store
	pool   *gtnostr.RelayPool
	proj   *projection.Store
	sync   *negentropy.Syncer
	prefs  *prefs.Store
	drafts *draftstore.Store
	blobs  *gtnostr.BlobUploader

	rt     *runtime.CoreRuntime
	facade *runtime.CommandFacade
}

// openSession boots a CoreRuntime for one CLI invocation: opens the
// on-disk event store, backfills and starts the projection, connects
// (best-effort) to configured relays, and runs spec 4.10's auto-login
// sequence.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := eventstore.NewBadgerStore(filepath.Join(cfg.BaseDir, "eventstore"))
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}

	diagCh := diag.New()

	pipeline := ingest.NewPipeline(store)
	pipeline.SetDiag(diagCh)
	pipeline.Start(ctx)

	var readURLs, writeURLs []string
	for _, r := range cfg.Relays {
		if r.Read {
			readURLs = append(readURLs, r.URL)
		}
		if r.Write {
			writeURLs = append(writeURLs, r.URL)
		}
	}
	pool := gtnostr.NewRelayPool(ctx, readURLs, writeURLs, pipeline)

	proj := projection.NewStore(store)
	if err := proj.Backfill(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("backfilling projection: %w", err)
	}
	proj.Start(ctx)

	keys := keystore.NewStore(cfg.BaseDir)
	creds := credstore.New(cfg.BaseDir)

	prefStore, err := prefs.Open(cfg.BaseDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening preferences: %w", err)
	}

	draftStore, err := draftstore.Open(filepath.Join(cfg.BaseDir, "drafts"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening draft store: %w", err)
	}
	blobs := gtnostr.NewBlobUploader(cfg.BlossomServers)

	projectLookup := func() []string {
		var coords []string
		for _, p := range proj.Projects() {
			coords = append(coords, p.Coordinate)
		}
		return coords
	}
	syncer := negentropy.New(pool, store, diagCh, "", projectLookup)
	syncer.Start(ctx)

	rt := runtime.New(store, pool, proj, syncer, diagCh, keys, creds)

	if nsec, ok := config.Nsec(); ok {
		if err := rt.Login(ctx, nsec, "", cfg.BaseDir); err != nil {
			return nil, fmt.Errorf("logging in from %s_NSEC: %w", config.EnvPrefix, err)
		}
	} else if err := rt.AutoLogin(ctx, cfg.BaseDir); err != nil {
		return nil, fmt.Errorf("auto-login: %w", err)
	}

	return &session{
		store:  store,
		pool:   pool,
		proj:   proj,
		sync:   syncer,
		prefs:  prefStore,
		drafts: draftStore,
		blobs:  blobs,
		rt:     rt,
		facade: runtime.NewCommandFacade(rt),
	}, nil
}

// close shuts down in spec 5's order: subscriptions first, then the
// store write handle last.
func (s *session) close() {
	s.sync.Stop()
	s.proj.Close()
	s.drafts.Close()
	s.store.Close()
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if dir := os.Getenv(config.EnvPrefix + "_BASE_DIR"); dir != "" {
		return filepath.Join(dir, "tenexcore.toml")
	}
	cfg := config.Default()
	return filepath.Join(cfg.BaseDir, "tenexcore.toml")
}
