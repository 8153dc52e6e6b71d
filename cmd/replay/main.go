// Command replay re-runs a tick log against a fresh world and checks every tick digest.
// Cognition is asynchronous, so only logs from worlds run without agents replay exactly.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"driftmoor.ai/internal/logging"
	persistlog "driftmoor.ai/internal/persistence/log"
	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/tuning"
	"driftmoor.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		ticksDir   = flag.String("ticks", "./data/ticks", "dir containing ticks-*.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "start from this snapshot instead of a fresh world (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "seed the logged world was started with (0: tuning seed)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	log := logging.New("", "", os.Stderr).WithField("component", "replay")

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		log.WithError(err).Fatal("load tuning")
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("load catalogs")
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			log.WithError(err).Fatal("read snapshot")
		}
		tune.Seed = s.Seed
		snap = &s
	}

	w, err := world.New(world.WorldConfig{Tuning: tune}, cats)
	if err != nil {
		log.WithError(err).Fatal("world")
	}
	defer w.Close()
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			log.WithError(err).Fatal("import snapshot")
		}
	}

	files, err := persistlog.TickFiles(*ticksDir)
	if err != nil {
		log.WithError(err).Fatal("list tick logs")
	}
	if len(files) == 0 {
		log.WithField("dir", *ticksDir).Fatal("no tick logs found")
	}

	r := &replayer{w: w, start: w.CurrentTick(), to: *toTick}
	for _, path := range files {
		err := persistlog.ReadTicks(path, r.apply)
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			log.WithError(err).WithField("file", filepath.Base(path)).Fatal("replay")
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d)\n", r.checked, r.start)
}

type replayer struct {
	w       *world.World
	start   uint64
	to      uint64
	checked uint64
}

func (r *replayer) apply(e world.TickLogEntry) error {
	if e.Tick < r.start {
		return nil
	}
	if r.to != 0 && e.Tick > r.to {
		return errStop
	}
	if e.Tick != r.w.CurrentTick() {
		return oops.In("replay").With("want", r.w.CurrentTick()).With("got", e.Tick).Errorf("tick gap in log")
	}

	for _, id := range e.Leaves {
		r.w.Leave() <- id
	}
	for _, j := range e.Joins {
		r.w.Join() <- world.JoinRequest{Name: j.Name, Profile: j.Profile}
	}
	for _, in := range e.Intents {
		r.w.Inbox() <- world.IntentEnvelope{EntityID: in.EntityID, Intent: in.Intent}
	}
	r.w.StepOnce()

	got := r.w.Metrics().Digest
	r.checked++
	if got != e.Digest {
		return oops.In("replay").With("tick", e.Tick).With("got", got).With("want", e.Digest).Errorf("digest mismatch")
	}
	return nil
}
