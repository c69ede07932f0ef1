package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"tailscale.com/tsnet"

	"github.com/agmux/agmux-core/internal/gitwt"
	"github.com/agmux/agmux-core/internal/maintenance"
	"github.com/agmux/agmux-core/internal/mcpsurface"
	"github.com/agmux/agmux-core/internal/notify"
	"github.com/agmux/agmux-core/internal/readiness"
	"github.com/agmux/agmux-core/internal/registry"
	"github.com/agmux/agmux-core/internal/runtime"
	"github.com/agmux/agmux-core/internal/store"
	"github.com/agmux/agmux-core/internal/transport"
)

var version = "0.1.0"

func main() {
	port := flag.Int("port", 4317, "port number (auto-increments if busy)")
	dev := flag.Bool("dev", false, "enable dev mode (verbose logging)")
	local := flag.Bool("local", false, "listen on localhost only (no Tailscale)")
	authEnabled := flag.Bool("auth", false, "require a token on the websocket upgrade and /api/* routes")
	authToken := flag.String("token", "", "fixed auth token (random 32-byte hex if unset)")
	mcpStdio := flag.Bool("mcp", false, "also serve the MCP tool surface over stdio")
	slackToken := flag.String("slack-token", "", "Slack bot token for readiness/exit notifications (optional)")
	slackChannel := flag.String("slack-channel", "", "Slack channel to post notifications to (required with -slack-token)")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("agmuxd", version)
		return
	}

	logLevel := slog.LevelInfo
	if *dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	db, err := store.Open(logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	logDiscovery := registry.NewLogDiscovery("", 0, 0)
	if err := logDiscovery.WatchForChanges(logger); err != nil {
		logger.Warn("log discovery file watch unavailable, falling back to polling only", "err", err)
	}
	defer logDiscovery.Close()
	reg := registry.New(db, logDiscovery)

	rt := runtime.NewManager(logger)
	readyEngine := readiness.NewEngine()
	wt := gitwt.New(logger)
	restorer := registry.NewRestorer(reg, rt, wt)

	originAllowlist := transport.DefaultOriginAllowlist(*port, nil)
	auth, err := transport.NewAuth(*authEnabled, *authToken, originAllowlist)
	if err != nil {
		logger.Error("failed to initialize auth", "err", err)
		os.Exit(1)
	}
	if *authEnabled {
		logger.Info("auth token", "token", auth.Token())
	}

	var channels []notify.Notifier
	pushMgr, err := notify.NewManager(logger)
	if err != nil {
		logger.Warn("push notifications unavailable", "err", err)
	} else {
		channels = append(channels, pushMgr)
	}
	if *slackToken != "" {
		if *slackChannel == "" {
			logger.Error("-slack-token requires -slack-channel")
			os.Exit(1)
		}
		channels = append(channels, notify.NewSlackNotifier(*slackToken, *slackChannel, logger))
	}
	notifier := notify.NewBroadcaster(channels...)

	hub := transport.NewHub(logger, auth, rt, readyEngine, db, notifier)

	sched, err := maintenance.New(logger, logDiscovery, db, func() map[string]bool {
		tracked := make(map[string]bool)
		for _, s := range rt.List() {
			if s.Backend == runtime.BackendTmux && s.TmuxSession != "" {
				tracked[s.TmuxSession] = true
			}
		}
		return tracked
	}, rt, readyEngine, reg)
	if err != nil {
		logger.Error("failed to build maintenance scheduler", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Pairing is only offered when token auth is enabled — it is a second
	// factor on top of the bearer token, not a replacement for it.
	if *authEnabled {
		registerPairingRoutes(mux, logger, *port, term.IsTerminal(int(os.Stdout.Fd())))
	}

	if *mcpStdio {
		mcpSrv := mcpsurface.New(reg, restorer, rt)
		go func() {
			if err := mcpSrv.ServeStdio(); err != nil {
				logger.Error("mcp server exited", "err", err)
			}
		}()
	}

	handler := auth.RequireToken(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Handler: handler}

	// Tailscale (non-loopback) listening is opt-in via ALLOW_NON_LOOPBACK=1;
	// otherwise the server binds to loopback.
	if *local || *dev || os.Getenv("ALLOW_NON_LOOPBACK") != "1" {
		ln, err := listenWithFallback("127.0.0.1", *port, 10, logger)
		if err != nil {
			logger.Error("failed to listen", "err", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "\n  agmuxd v%s running at:\n\n    http://%s\n\n", version, ln.Addr().String())
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()
	} else {
		tsServer := &tsnet.Server{
			Hostname: "agmux",
			Logf:     func(format string, args ...any) { logger.Debug(fmt.Sprintf(format, args...)) },
		}

		ln, err := tsServer.ListenTLS("tcp", fmt.Sprintf(":%d", *port))
		if err != nil {
			logger.Error("failed to listen on tailscale", "err", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "\n  agmuxd v%s running at:\n\n", version)
		lc, _ := tsServer.LocalClient()
		if lc != nil {
			if status, err := lc.Status(ctx); err == nil && status.Self != nil {
				dnsName := strings.TrimSuffix(status.Self.DNSName, ".")
				if dnsName != "" {
					fmt.Fprintf(os.Stderr, "    https://%s:%d\n", dnsName, *port)
				}
				for _, ip := range status.TailscaleIPs {
					fmt.Fprintf(os.Stderr, "    https://%s:%d\n", ip, *port)
				}
			} else if err != nil {
				logger.Warn("could not get tailscale status", "err", err)
			}
		}
		fmt.Fprintln(os.Stderr)

		srv.TLSConfig = &tls.Config{}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()
		defer tsServer.Close()
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

// registerPairingRoutes wires the TOTP second-factor spec §9 leaves as an
// open question (DESIGN.md: offered whenever auth is enabled): a QR code
// a mobile client scans once, then a validate endpoint it calls to prove
// possession of the paired secret on subsequent connects. Both routes sit
// under /api/, so the bearer-token middleware already gates them.
func registerPairingRoutes(mux *http.ServeMux, logger *slog.Logger, port int, tty bool) {
	pairing, err := transport.NewPairing("agmux", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		logger.Warn("pairing unavailable", "err", err)
		return
	}
	if tty {
		fmt.Fprintf(os.Stderr, "\n  pairing otpauth url (scan or copy into an authenticator app):\n\n    %s\n\n", pairing.URL())
	}

	mux.HandleFunc("/api/pair/qr.png", func(w http.ResponseWriter, r *http.Request) {
		png, err := pairing.RenderQRPNG(8)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("/api/pair/validate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"code"`
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				code = body.Code
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"valid": pairing.Validate(code)})
	})
}

func listenWithFallback(host string, startPort, maxAttempts int, logger *slog.Logger) (net.Listener, error) {
	for i := range maxAttempts {
		port := startPort + i
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				logger.Info("port was busy, using fallback", "requested", startPort, "actual", port)
			}
			return ln, nil
		}
		if !strings.Contains(err.Error(), "address already in use") {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all ports %d-%d are in use", startPort, startPort+maxAttempts-1)
}
