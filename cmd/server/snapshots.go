package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/persistence/snapshot"
)

type snapshotRecorder interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

// runSnapshotWriter persists snapshots exported by the world loop until ctx ends. rec may
// be nil.
func runSnapshotWriter(ctx context.Context, dir string, ch <-chan snapshot.SnapshotV1, rec snapshotRecorder, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.Path(dir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				log.WithError(err).WithField("tick", snap.Header.Tick).Error("snapshot write")
				continue
			}
			log.WithField("tick", snap.Header.Tick).Debug("snapshot written")
			if rec != nil {
				rec.RecordSnapshot(path, snap)
			}
		}
	}
}
