// Command GreatestBGHits runs the backgammon mistake-quiz server: it wires
// the quiz store, crawl queue, engine driver, crawl client, and HTTP
// surface together and serves.
package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
	"github.com/kagsteiner/GreatestBGHits/internal/config"
	"github.com/kagsteiner/GreatestBGHits/internal/crawler"
	"github.com/kagsteiner/GreatestBGHits/internal/gnubg"
	"github.com/kagsteiner/GreatestBGHits/internal/httpapi"
	"github.com/kagsteiner/GreatestBGHits/internal/pipeline"
	"github.com/kagsteiner/GreatestBGHits/internal/queue"
	"github.com/kagsteiner/GreatestBGHits/internal/quizstore"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	store, err := quizstore.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open quiz store: %v", err)
	}
	defer store.Close()

	engine := gnubg.New(cfg.EnginePath, cfg.EngineModeFlag, logger)
	az := analyzer.New(engine)

	crawlClient, err := crawler.New(crawler.Config{
		BaseURL:      cfg.SourceBaseURL,
		LoginPath:    cfg.SourceLoginPath,
		ListPath:     cfg.SourceListPath,
		ExportPrefix: cfg.SourceExportPrefix,
		WelcomeText:  cfg.SourceWelcomeText,
	})
	if err != nil {
		log.Fatalf("init crawl client: %v", err)
	}

	pl := pipeline.New(store, az, crawlClient, cfg.Threshold, logger)
	q := queue.New(pl.Run, logger)

	srv := httpapi.New(store, q, engine, logger)

	logger.Info("starting server", "addr", cfg.HTTPAddr, "dbPath", cfg.DBPath, "engineConfigured", cfg.EnginePath != "")
	if err := http.ListenAndServe(cfg.HTTPAddr, srv.Router()); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
