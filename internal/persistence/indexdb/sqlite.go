package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/tuning"
	"driftmoor.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary store: a per-tick index of the tick log, snapshot
// metadata and saved player profiles. Writes go through a single goroutine so the world
// loop never waits on disk.
type SQLiteIndex struct {
	db  *sql.DB
	log *logrus.Entry

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	// Profiles saved this process, served before they are committed.
	profMu   sync.Mutex
	profiles map[string]world.SavedProfile

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropProfile  atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqProfile
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
	profile  world.ProfileRecord
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Seed     int64
	Entities int
	Nodes    int
}

// Stats reports the write queue and how many records were dropped because it was full.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTick      uint64 `json:"drop_tick_total"`
	DropSnapshot  uint64 `json:"drop_snapshot_total"`
	DropProfile   uint64 `json:"drop_profile_total"`
	WriteErrors   uint64 `json:"write_errors_total"`
}

func OpenSQLite(path string, log *logrus.Entry) (*SQLiteIndex, error) {
	if path == "" {
		return nil, oops.In("indexdb").Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.In("indexdb").Wrapf(err, "mkdir")
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = logrus.NewEntry(l)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.In("indexdb").With("path", path).Wrapf(err, "open")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, oops.In("indexdb").Wrapf(err, "pragmas")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, oops.In("indexdb").Wrapf(err, "schema")
	}

	s := &SQLiteIndex{
		db:       db,
		log:      log.WithField("component", "indexdb"),
		ch:       make(chan req, 65536),
		profiles: map[string]world.SavedProfile{},
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			intents INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS intents (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			intent_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_intents_entity_tick ON intents(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			nodes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			name TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			skills TEXT NOT NULL,
			inventory TEXT NOT NULL,
			bank TEXT NOT NULL,
			quests TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTick:      s.dropTick.Load(),
		DropSnapshot:  s.dropSnapshot.Load(),
		DropProfile:   s.dropProfile.Load(),
		WriteErrors:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; the JSONL tick log remains the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Seed:     snap.Seed,
		Entities: len(snap.Entities),
		Nodes:    len(snap.Nodes),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// SaveProfile stores a leaving player's profile under their display name.
func (s *SQLiteIndex) SaveProfile(rec world.ProfileRecord) {
	if s == nil || s.closed.Load() || rec.Name == "" {
		return
	}
	s.profMu.Lock()
	s.profiles[rec.Name] = rec.Profile
	s.profMu.Unlock()

	select {
	case s.ch <- req{kind: reqProfile, profile: rec}:
	default:
		s.dropProfile.Add(1)
	}
}

// DrainProfiles saves every record received on ch until it is closed or ctx ends.
func (s *SQLiteIndex) DrainProfiles(ctx context.Context, ch <-chan world.ProfileRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			s.SaveProfile(rec)
		}
	}
}

// LoadProfile returns the last saved profile for name. ok is false when there is none.
func (s *SQLiteIndex) LoadProfile(ctx context.Context, name string) (*world.SavedProfile, bool, error) {
	s.profMu.Lock()
	p, ok := s.profiles[name]
	s.profMu.Unlock()
	if ok {
		return &p, true, nil
	}

	var skills, inv, bank, quests string
	err := s.db.QueryRowContext(ctx,
		`SELECT skills,inventory,bank,quests FROM profiles WHERE name=?`, name,
	).Scan(&skills, &inv, &bank, &quests)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.In("indexdb").With("name", name).Wrapf(err, "load profile")
	}
	return &world.SavedProfile{
		Name:      name,
		Skills:    blob(skills),
		Inventory: blob(inv),
		Bank:      blob(bank),
		Quests:    blob(quests),
	}, true, nil
}

// UpsertCatalogs records the digests of the content and tuning the world was started with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	rows := [][2]string{
		{"items", cats.Items.Digest},
		{"recipes", cats.Recipes.Digest},
		{"nodes", cats.Nodes.Digest},
		{"npcs", cats.NPCs.Digest},
		{"shops", cats.Shops.Digest},
		{"quests", cats.Quests.Digest},
		{"world", cats.WorldDigest},
		{"tuning", hex.EncodeToString(sum[:])},
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return oops.In("indexdb").Wrapf(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('world_id',?)`, tune.WorldID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,updated_at) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		if _, err := stmt.Exec(r[0], r[1], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,intents,rejected,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,entity_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,entity_id) VALUES(?,?)`)
	insertIntent, _ := s.db.Prepare(`INSERT OR REPLACE INTO intents(tick,seq,entity_id,intent,intent_json) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,entities,nodes) VALUES(?,?,?,?,?)`)
	upsertProfile, _ := s.db.Prepare(`INSERT OR REPLACE INTO profiles(name,entity_id,tick,skills,inventory,bank,quests,updated_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertIntent, insertSnapshot, upsertProfile} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("begin index tx")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.log.WithError(err).Warn("commit index tx")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	fail := func(err error, what string) {
		s.writeErrors.Add(1)
		s.log.WithError(err).Warn(what)
		if tx != nil {
			_ = tx.Rollback()
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) error {
		if st == nil {
			return oops.In("indexdb").Errorf("statement not prepared")
		}
		_, err := tx.Stmt(st).Exec(args...)
		if err == nil {
			opCount++
		}
		return err
	}

	handle := func(r req) {
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqTick:
			if err := s.indexTick(exec, r.tick, insertTick, insertJoin, insertLeave, insertIntent); err != nil {
				fail(err, "index tick")
				return
			}

		case reqSnapshot:
			sn := r.snapshot
			if err := exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Entities, sn.Nodes); err != nil {
				fail(err, "index snapshot")
				return
			}

		case reqProfile:
			p := r.profile
			if err := exec(upsertProfile,
				p.Name, p.EntityID, int64(p.Tick),
				string(p.Profile.Skills),
				string(p.Profile.Inventory),
				string(p.Profile.Bank),
				string(p.Profile.Quests),
				time.Now().UTC().Format(time.RFC3339Nano),
			); err != nil {
				fail(err, "save profile")
				return
			}
			// Profiles are committed immediately; a lost save costs a player progress.
			commit()
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// The open tx holds the only connection, so an idle queue must still commit for
	// LoadProfile to get through.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-ticker.C:
			commit()
		}
	}
}

func (s *SQLiteIndex) indexTick(exec func(*sql.Stmt, ...any) error, e world.TickLogEntry, tickSt, joinSt, leaveSt, intentSt *sql.Stmt) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tick := int64(e.Tick)
	if err := exec(tickSt, tick, e.Digest, len(e.Joins), len(e.Leaves), len(e.Intents), e.Rejected, string(raw)); err != nil {
		return err
	}
	for _, j := range e.Joins {
		if err := exec(joinSt, tick, j.EntityID, j.Name); err != nil {
			return err
		}
	}
	for _, id := range e.Leaves {
		if err := exec(leaveSt, tick, id); err != nil {
			return err
		}
	}
	for i, in := range e.Intents {
		b, err := json.Marshal(in.Intent)
		if err != nil {
			return err
		}
		if err := exec(intentSt, tick, i, in.EntityID, in.Intent.Intent, string(b)); err != nil {
			return err
		}
	}
	return nil
}

// blob maps an empty column back to a missing blob, which restore skips.
func blob(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
