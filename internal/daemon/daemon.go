package daemon

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/api"
	"github.com/letsbehealthy/stepcoin/internal/app/anomaly"
	"github.com/letsbehealthy/stepcoin/internal/app/auth"
	"github.com/letsbehealthy/stepcoin/internal/app/ledger"
	"github.com/letsbehealthy/stepcoin/internal/app/social"
	"github.com/letsbehealthy/stepcoin/internal/domain"
	"github.com/letsbehealthy/stepcoin/internal/infra/catalog"
	"github.com/letsbehealthy/stepcoin/internal/infra/sqlite"
	"github.com/letsbehealthy/stepcoin/internal/infra/stepsource"
)

// Run starts the daemon: storage, services, the HTTP API, and optionally
// the background poller. It blocks until ctx is cancelled, then shuts the
// server down gracefully.
func Run(ctx context.Context, cfg Config) error {
	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		log.Println("daemon: no auth secret configured; sessions will not survive a restart")
	}

	hub := api.NewLedgerHub()
	cat := catalog.Default()
	detector := anomaly.NewDetector(anomaly.DefaultDetectorConfig())

	ledgerSvc := ledger.New(db, cat, hub)
	authSvc := auth.New(db, secret, cfg.Auth.TokenTTLDuration())
	socialSvc := social.New(db)

	srv := api.NewServer(ledgerSvc, authSvc, socialSvc, cat)
	srv.SetHub(hub)
	srv.SetDetector(detector)
	if cfg.API.MetricsEnabled {
		srv.EnableMetrics()
	}

	if cfg.Poller.Enabled {
		source := buildSource(cfg.Poller)
		poller := NewPoller(ledgerSvc, source, detector, cfg.Poller.IntervalDuration())
		go poller.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("daemon: listening on %s", cfg.API.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildSource(cfg PollerConfig) domain.StepSource {
	if cfg.SourceURL != "" {
		return stepsource.NewHTTPSource(cfg.SourceURL, 10*time.Second)
	}
	return stepsource.NewSimulatedSource(time.Now(), 500)
}
