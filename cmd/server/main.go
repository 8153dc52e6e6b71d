package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/logging"
	"driftmoor.ai/internal/persistence/indexdb"
	persistlog "driftmoor.ai/internal/persistence/log"
	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/cognition/reasoner"
	"driftmoor.ai/internal/sim/tuning"
	"driftmoor.ai/internal/sim/world"
	"driftmoor.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		agentsPath = flag.String("agents", "", "path to agent notecards (default: <configs>/agents.yaml)")
		logLevel   = flag.String("log_level", "", "log level (default: LOG_LEVEL or info)")
		logFormat  = flag.String("log_format", "", "text or json (default: LOG_FORMAT or text)")
		reasonURL  = flag.String("reasoner_url", "", "LLM gateway endpoint (empty: scripted offline reasoner)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index and profile store")
		seed       = flag.Int64("seed", 0, "world seed for a fresh world (0: tuning seed)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	base := logging.New(*logLevel, *logFormat, os.Stdout)
	logger := base.WithField("component", "server")

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	ap := strings.TrimSpace(*agentsPath)
	if ap == "" {
		ap = filepath.Join(*configDir, "agents.yaml")
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.WithError(err).Fatal("load catalogs")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Fatal("load tuning")
		}
		logger.WithField("path", tp).Warn("tuning not found, using defaults")
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	cards, err := cognition.LoadNotecards(ap)
	if err != nil {
		logger.WithError(err).Fatal("load agent notecards")
	}
	schemas, err := protocol.LoadSchemas()
	if err != nil {
		logger.WithError(err).Fatal("load protocol schemas")
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, ok, err := snapshot.Latest(snapDir)
		if err != nil {
			logger.WithError(err).Warn("scan snapshots")
		}
		if ok {
			snapshotToLoad = p
		}
	}
	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.WithError(err).Fatal("read snapshot")
		}
		// The resumed world keeps the seed and rate it was started with.
		tune.Seed = s.Seed
		if s.TickRate > 0 {
			tune.TickRateHz = s.TickRate
		}
		snap = &s
	}

	var rsn cognition.Reasoner
	if u := strings.TrimSpace(*reasonURL); u != "" {
		h, err := reasoner.NewHTTP(u, os.Getenv("DM_REASONER_TOKEN"), schemas)
		if err != nil {
			logger.WithError(err).Fatal("reasoner")
		}
		rsn = h
		logger.WithField("endpoint", u).Info("using http reasoner")
	} else {
		rsn = reasoner.NewScripted(150 * time.Millisecond)
		logger.Info("no reasoner_url, using scripted reasoner")
	}

	w, err := world.New(world.WorldConfig{
		Tuning:   tune,
		Reasoner: rsn,
		Agents:   cards,
		Log:      logrus.NewEntry(base),
	}, cats)
	if err != nil {
		logger.WithError(err).Fatal("world")
	}
	defer w.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// Optional: read-model index + profile store (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	var profiles ws.ProfileStore
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "world.sqlite"), logrus.NewEntry(base))
		if err != nil {
			logger.WithError(err).Fatal("open index")
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.WithError(err).Warn("index: upsert catalogs")
		}
		profiles = idx

		profCh := make(chan world.ProfileRecord, 64)
		w.SetProfileSink(profCh)
		go idx.DrainProfiles(ctx, profCh)
	}

	// After the profile sink so players in the snapshot are saved for their rejoin.
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.WithError(err).Fatal("import snapshot")
		}
		logger.WithFields(logrus.Fields{"snapshot": filepath.Base(snapshotToLoad), "tick": w.CurrentTick()}).Info("resumed from snapshot")
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	if idx != nil {
		w.SetTickLogger(persistlog.Tee{tickLog, idx})
	} else {
		w.SetTickLogger(tickLog)
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		runSnapshotWriter(ctx, snapDir, snapCh, idx, logger)
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("world stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(tune.WorldID, w, idx))
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			WorldID string        `json:"world_id"`
			Tick    uint64        `json:"tick"`
			Metrics world.Metrics `json:"metrics"`
		}{tune.WorldID, w.CurrentTick(), w.Metrics()})
	})
	if envBool("DM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, schemas, profiles, logrus.NewEntry(base)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithFields(logrus.Fields{"addr": *addr, "world": tune.WorldID, "agents": len(cards.Agents)}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("ListenAndServe")
		cancel()
	}
	<-worldDone
	<-writerDone
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
