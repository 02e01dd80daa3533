package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stage-manager/internal/config"
	"stage-manager/internal/persistence"
	"stage-manager/internal/relay"
	"stage-manager/internal/session"
	"stage-manager/internal/socket"
	"stage-manager/internal/stage"
)

func main() {
	sessionID := flag.String("session", "", "relay session to join")
	sceneID := flag.String("scene", "", "scene to load from the store before syncing")
	userID := flag.String("user", "", "local user id")
	elevated := flag.Bool("elevated", false, "join with elevated permissions")
	token := flag.String("token", "", "relay token (issued locally from RELAY_JWT_SECRET when empty)")
	addImage := flag.String("add-image", "", "add an image object with this source after joining")
	duration := flag.Duration("duration", 0, "leave after this long (0 waits for interrupt)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if *sessionID == "" || *userID == "" {
		log.Fatal("session and user are required")
	}

	rawToken := *token
	if rawToken == "" {
		if cfg.RelayJWTSecret == "" {
			log.Fatal("token or RELAY_JWT_SECRET is required")
		}
		issued, err := relay.IssueToken(cfg.RelayJWTSecret, *userID, *elevated, cfg.TokenTTL())
		if err != nil {
			log.Fatalf("token signing failed: %v", err)
		}
		rawToken = issued
	}

	store, closeStore, err := persistence.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	endpoint := strings.TrimRight(cfg.RelayURL, "/") + "/ws/sessions/" + url.PathEscape(*sessionID)
	transport, err := socket.Dial(ctx, endpoint, rawToken, cfg.SendQueueSize)
	if err != nil {
		log.Fatalf("relay dial failed: %v", err)
	}

	sess := session.New(session.Options{
		UserID:   *userID,
		Elevated: *elevated,
		Interval: cfg.SyncInterval(),
		Viewport: cfg.Viewport(),
	}, transport, persistence.NewAdapter(store))

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	done := make(chan error, 1)
	go func() { done <- sess.Run(runCtx) }()

	if *sceneID != "" {
		if err := sess.LoadScene(ctx, *sceneID); err != nil {
			log.Printf("scene load failed scene_id=%s error=%v", *sceneID, err)
		}
	}
	if *addImage != "" {
		err := sess.Do(ctx, func(m *stage.Manager) error {
			src := *addImage
			obj, err := m.Add(*userID, stage.TypeImage, stage.Patch{Src: &src})
			if err == nil {
				log.Printf("stage object added id=%s type=%s", obj.ID(), obj.Type())
			}
			return err
		})
		if err != nil {
			log.Printf("add image failed src=%s error=%v", *addImage, err)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-done:
		log.Printf("session ended error=%v", err)
		return
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Sync(shutdown); err != nil && !errors.Is(err, socket.ErrSendFailed) {
		log.Printf("final sync failed error=%v", err)
	}
	if changed, err := sess.Persist(shutdown); err != nil {
		log.Printf("persist failed error=%v", err)
	} else {
		log.Printf("stage persisted keys_changed=%d", changed)
	}
	_ = sess.Close()
	cancelRun()
	<-done
}
