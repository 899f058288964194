package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adminconsole/internal/auth"
	"github.com/adminconsole/internal/config"
	"github.com/adminconsole/internal/gateway"
	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/notice"
	"github.com/adminconsole/internal/realtime"
	"github.com/adminconsole/internal/registry"
	"github.com/adminconsole/internal/stubserver"
	"github.com/adminconsole/internal/stubserver/store"
	"github.com/adminconsole/internal/transport"
	"github.com/adminconsole/internal/typing"
)

func main() {
	logger.SetPrefix("console")
	dev := flag.Bool("dev", false, "start with embedded stub admin API (no external service required)")
	email := flag.String("email", stubserver.AdminEmail, "admin login email")
	password := flag.String("password", stubserver.AdminPassword, "admin login password")
	flag.Parse()

	logger.Info("starting admin console")
	cfg := config.Load()

	var stubSrv *http.Server
	var stub *stubserver.Server
	var stubWg sync.WaitGroup
	if *dev {
		st, err := openStubStore(cfg)
		if err != nil {
			logger.Errorf("stub store: %v", err)
			os.Exit(1)
		}
		defer st.Close()

		stub = stubserver.New(cfg.Stub, st)
		stubSrv = &http.Server{Addr: cfg.Stub.Addr, Handler: stub.Router()}
		stubWg.Add(1)
		go func() {
			defer stubWg.Done()
			logger.Infof("stub admin API listening on %s", cfg.Stub.Addr)
			if err := stubSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("stub server: %v", err)
			}
		}()

		cfg.APIBaseURL = "http://" + cfg.Stub.Addr
		cfg.WSURL = "ws://" + cfg.Stub.Addr + "/admin/chat/ws"
	}

	// Cookie jar обязателен: refresh-cookie ротируется сервером и должна
	// разделяться login- и refresh-запросами одного процесса.
	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.Errorf("cookie jar: %v", err)
		os.Exit(1)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.RequestTimeout}

	notices := notice.NewCenter(cfg.NoticeTTL)
	coord := auth.New(cfg.APIBaseURL+"/admin/refresh", httpClient, cfg.RefreshTimeout, notices)
	gw := gateway.New(cfg.APIBaseURL, httpClient, coord)

	loginCtx, loginCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	token, err := gw.Login(loginCtx, *email, *password)
	loginCancel()
	if err != nil {
		logger.Errorf("login: %v", err)
		os.Exit(1)
	}
	coord.SetToken(token)
	logger.Info("authenticated as admin")

	reg := registry.New()
	loadCtx, loadCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	threads, err := gw.LoadThreads(loadCtx)
	loadCancel()
	if err != nil {
		logger.Errorf("load threads: %v", err)
		os.Exit(1)
	}
	reg.Replace(threads)
	logger.Infof("loaded %d threads", len(threads))

	client := transport.NewClient(cfg.WSURL, coord)
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()
	if err := client.Connect(connCtx); err != nil {
		logger.Errorf("websocket connect: %v", err)
		os.Exit(1)
	}

	tracker := typing.NewTracker(cfg.TypingExpiry)
	engine := realtime.NewEngine(reg, tracker, client, cfg.MessageWindow)

	engineCtx, engineCancel := context.WithCancel(context.Background())
	var engineWg sync.WaitGroup
	engineWg.Add(1)
	go func() {
		defer engineWg.Done()
		engine.Run(engineCtx, client.Events())
	}()

	if *dev {
		go simulateTraffic(engineCtx, stub)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	client.Close()
	client.Wait()
	engineCancel()
	engineWg.Wait()
	logger.Info("sync engine stopped")

	if stubSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := stubSrv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("stub shutdown: %v", err)
		}
		shutdownCancel()
		stubWg.Wait()
		logger.Info("stub server stopped")
	}
}

func openStubStore(cfg *config.Config) (store.Store, error) {
	if cfg.Stub.RedisURL == "" {
		logger.Info("stub: using in-memory session store")
		return store.NewMemory(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := store.NewRedis(ctx, cfg.Stub.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("stub: using redis session store")
	return st, nil
}

// simulateTraffic в dev-режиме периодически генерирует входящие события,
// чтобы консоль синхронизировала живой поток без внешнего сервиса.
func simulateTraffic(ctx context.Context, stub *stubserver.Server) {
	phrases := []string{
		"Здравствуйте! Подскажите по доставке.",
		"Ещё актуален мой вопрос?",
		"Спасибо за ответ!",
	}
	threadIDs := []string{"t-ivanova", "t-petrov"}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		threadID := threadIDs[i%len(threadIDs)]
		stub.EmitTyping(threadID, "u-"+threadID, threadID+"@example.com", true)
		time.Sleep(2 * time.Second)
		stub.EmitTyping(threadID, "u-"+threadID, threadID+"@example.com", false)
		stub.EmitUserMessage(threadID, phrases[i%len(phrases)])
		i++
	}
}
