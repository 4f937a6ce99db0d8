package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"replydeck/manager/internal/config"
	"replydeck/manager/internal/database"
	"replydeck/manager/internal/genai"
	"replydeck/manager/internal/models"
	"replydeck/manager/internal/platform"
	"replydeck/manager/internal/platform/reddit"
	"replydeck/manager/internal/platform/youtube"
	"replydeck/manager/internal/server"
	"replydeck/manager/internal/store"
	"replydeck/manager/internal/workflow"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func usage() {
	fmt.Println("Usage: manager [command] [options]")
	fmt.Println("Commands: server, sync, operator, probe")
	fmt.Println("\nFor command-specific options, use: manager [command] -h")
}

func main() {
	cfg := config.DefaultConfig()

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("MANAGER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: MANAGER_DB_PATH)")
	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("MANAGER_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: MANAGER_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("MANAGER_PORT", config.DefaultServerPort),
		"Port to listen on (env: MANAGER_PORT)")

	var serverLogLevelStr string
	serverCmd.StringVar(&serverLogLevelStr, "log-level", config.GetEnvString("MANAGER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: MANAGER_LOG_LEVEL)")

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("MANAGER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: MANAGER_DB_PATH)")

	var syncPlatform string
	syncCmd.StringVar(&syncPlatform, "platform", "reddit", "Platform to sync: reddit or youtube")

	var syncContainer string
	syncCmd.StringVar(&syncContainer, "container", "", "Subreddit or channel id to sync items from")

	var syncOperator string
	syncCmd.StringVar(&syncOperator, "operator", "", "Username of the operator the items belong to")

	var intervalMinutes int
	syncCmd.IntVar(&intervalMinutes, "interval", config.GetEnvInt("MANAGER_SYNC_INTERVAL", 0),
		"Interval in minutes between sync passes, 0 for one-shot mode (env: MANAGER_SYNC_INTERVAL)")

	syncCmd.IntVar(&cfg.ItemSyncLimit, "item-limit", config.GetEnvInt("MANAGER_ITEM_LIMIT", config.DefaultItemSyncLimit),
		"Maximum items fetched per pass (env: MANAGER_ITEM_LIMIT)")
	syncCmd.IntVar(&cfg.CommentSyncLimit, "comment-limit", config.GetEnvInt("MANAGER_COMMENT_LIMIT", config.DefaultCommentSyncLimit),
		"Maximum comments fetched per item per pass (env: MANAGER_COMMENT_LIMIT)")

	var syncLogLevelStr string
	syncCmd.StringVar(&syncLogLevelStr, "log-level", config.GetEnvString("MANAGER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: MANAGER_LOG_LEVEL)")

	operatorCmd := flag.NewFlagSet("operator", flag.ExitOnError)
	operatorCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("MANAGER_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: MANAGER_DB_PATH)")

	var operatorUsername string
	operatorCmd.StringVar(&operatorUsername, "username", "", "Username for the new operator account")

	probeCmd := flag.NewFlagSet("probe", flag.ExitOnError)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		serverCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(serverLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		if err := runServer(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "sync":
		syncCmd.Parse(os.Args[2:])

		if level, err := zerolog.ParseLevel(syncLogLevelStr); err == nil {
			cfg.LogLevel = level
		}
		zerolog.SetGlobalLevel(cfg.LogLevel)

		pf := models.Platform(syncPlatform)
		if !pf.Valid() {
			log.Error().Str("platform", syncPlatform).Msg("Unknown platform")
			os.Exit(1)
		}
		if syncContainer == "" || syncOperator == "" {
			log.Error().Msg("Both -container and -operator are required")
			os.Exit(1)
		}

		interval := time.Duration(intervalMinutes) * time.Minute
		if err := runSync(cfg, pf, syncContainer, syncOperator, interval); err != nil {
			log.Error().Err(err).Msg("Sync failed")
			os.Exit(1)
		}

	case "operator":
		operatorCmd.Parse(os.Args[2:])

		if operatorUsername == "" {
			log.Error().Msg("-username is required")
			os.Exit(1)
		}

		if err := runCreateOperator(cfg, operatorUsername); err != nil {
			log.Error().Err(err).Msg("Operator creation failed")
			os.Exit(1)
		}

	case "probe":
		probeCmd.Parse(os.Args[2:])

		if err := runProbe(); err != nil {
			log.Error().Err(err).Msg("Probe failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		usage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		usage()
		os.Exit(1)
	}
}

// clientFactory builds per-operation platform clients from the loaded
// credentials.
func clientFactory(creds *config.Credentials) platform.Factory {
	return func(p models.Platform) (platform.Client, error) {
		switch p {
		case models.PlatformReddit:
			return reddit.New(reddit.Config{
				ClientID:     creds.RedditClientID,
				ClientSecret: creds.RedditClientSecret,
				Username:     creds.RedditUsername,
				Password:     creds.RedditPassword,
				UserAgent:    creds.RedditUserAgent,
			}), nil
		case models.PlatformYouTube:
			return youtube.New(youtube.Config{
				ClientID:     creds.YouTubeClientID,
				ClientSecret: creds.YouTubeClientSecret,
				RefreshToken: creds.YouTubeRefreshToken,
			}), nil
		default:
			return nil, fmt.Errorf("unknown platform %q", p)
		}
	}
}

// buildWorkflow opens the database and assembles the workflow with its
// platform factory and generator.
func buildWorkflow(cfg *config.Config) (*workflow.Workflow, *store.Store, *database.DB, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, nil, nil, err
	}

	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	st := store.New(db)
	gen := genai.NewGenerator(creds.GenerationURL, creds.GenerationModel)
	wf := workflow.New(st, clientFactory(creds), gen, cfg.ItemSyncLimit, cfg.CommentSyncLimit)
	return wf, st, db, nil
}

// runServer starts the HTTP API server.
func runServer(cfg *config.Config) error {
	wf, st, db, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return server.RunServer(st, wf, cfg.ListenAddr(), log.Logger)
}

// runSync pulls items and their comments for one operator, once or on an
// interval until interrupted.
func runSync(cfg *config.Config, pf models.Platform, container, username string, interval time.Duration) error {
	wf, st, db, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	op, err := st.OperatorByUsername(ctx, username)
	if err != nil {
		return err
	}
	if op == nil {
		return fmt.Errorf("operator %q does not exist, create it with: manager operator -username %s", username, username)
	}

	if err := runSyncPass(ctx, wf, op, pf, container, cfg.ItemSyncLimit); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if interval <= 0 {
		log.Info().Msg("One-shot sync completed, exiting")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Time("next_run", time.Now().Add(interval)).
		Msg("Waiting for next sync pass")

	for {
		select {
		case <-ticker.C:
			if err := runSyncPass(ctx, wf, op, pf, container, cfg.ItemSyncLimit); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				log.Error().Err(err).Msg("Sync pass failed")
				// Keep going until the next tick.
			}

			log.Info().
				Time("next_run", time.Now().Add(interval)).
				Msg("Waiting for next sync pass")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic sync")
			return nil
		}
	}
}

// runSyncPass fetches the newest items for the container and then the
// comments of every item on the first page.
func runSyncPass(ctx context.Context, wf *workflow.Workflow, op *models.Operator, pf models.Platform, container string, itemLimit int) error {
	start := time.Now()

	result, err := wf.SyncItems(ctx, op, pf, container)
	if err != nil {
		return err
	}

	items, err := wf.ListItems(ctx, op, pf, itemLimit, time.Time{}, 0)
	if err != nil {
		return err
	}

	var commentsCreated int
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cr, err := wf.SyncComments(ctx, op, item.ID)
		if err != nil {
			return err
		}
		commentsCreated += cr.Created
	}

	log.Info().
		Int("items_fetched", result.Fetched).
		Int("items_created", result.Created).
		Int("comments_created", commentsCreated).
		Dur("duration", time.Since(start)).
		Msg("Sync pass finished")
	return nil
}

// runCreateOperator creates an operator account and prints its API key.
// The key is shown only once; it is stored as-is and used verbatim in the
// X-API-Key header.
func runCreateOperator(cfg *config.Config, username string) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	ctx := context.Background()

	existing, err := st.OperatorByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("operator %q already exists", username)
	}

	apiKey := xid.New().String() + xid.New().String()
	op, err := st.CreateOperator(ctx, username, apiKey)
	if err != nil {
		return err
	}

	fmt.Printf("Operator created: %s (id %d)\n", op.Username, op.ID)
	fmt.Printf("API key: %s\n", apiKey)
	return nil
}

// runProbe checks connectivity to the platforms and the generation backend.
func runProbe() error {
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	gen := genai.NewGenerator(creds.GenerationURL, creds.GenerationModel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := workflow.Probe(ctx, clientFactory(creds), gen)
	for target, ok := range status {
		if ok {
			fmt.Printf("%-10s OK\n", target)
		} else {
			fmt.Printf("%-10s FAILED\n", target)
		}
	}
	return nil
}
