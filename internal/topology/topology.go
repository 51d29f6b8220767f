// Package topology implements the capability probe (spec §4.1): it detects
// a MongoDB deployment's tier and derives the feature set available to the
// rest of the memory subsystem.
package topology

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Tier is the capability level of the underlying deployment (spec GLOSSARY
// "Tier. standalone < replicaset < fullstack").
type Tier string

const (
	TierStandalone Tier = "standalone"
	TierReplicaSet Tier = "replicaset"
	TierFullstack  Tier = "fullstack"
)

// Features is the derived feature set for a Tier (spec §4.1).
type Features struct {
	Transactions  bool
	ChangeStreams bool
	TextSearch    bool
	VectorSearch  bool
	RankFusion    bool // server version >= 8.0
	ScoreFusion   bool // server version >= 8.2
}

// Topology is the cached result of one capability probe run (spec §4.1:
// "The probe runs once at startup and its result is cached per manager
// instance").
type Topology struct {
	Tier           Tier
	IsReplicaSet   bool
	ReplicaSetName string
	ServerVersion  string
	HasSearchEngine bool
	HasTransactions bool
	Features       Features
}

// Detect probes db and returns the resolved Topology (spec §4.1
// detectTopology(db) → Topology).
func Detect(ctx context.Context, db *mongo.Database) (*Topology, error) {
	t := &Topology{ServerVersion: "unknown"}

	if name, ok := probeReplicaSet(ctx, db); ok {
		t.IsReplicaSet = true
		t.ReplicaSetName = name
	}

	if v, ok := probeServerVersion(ctx, db); ok {
		t.ServerVersion = v
	}

	t.HasSearchEngine = probeSearchEngine(ctx, db)

	t.HasTransactions = t.IsReplicaSet || probeTransactions(ctx, db)

	switch {
	case t.IsReplicaSet && t.HasSearchEngine:
		t.Tier = TierFullstack
	case t.IsReplicaSet:
		t.Tier = TierReplicaSet
	default:
		t.Tier = TierStandalone
	}

	t.Features = featuresForTier(t.Tier, t.ServerVersion)

	slog.Info("topology: capability probe complete",
		slog.String("tier", string(t.Tier)),
		slog.Bool("replicaSet", t.IsReplicaSet),
		slog.String("serverVersion", t.ServerVersion),
		slog.Bool("searchEngine", t.HasSearchEngine))

	return t, nil
}

func probeReplicaSet(ctx context.Context, db *mongo.Database) (setName string, ok bool) {
	var res bson.M
	err := db.RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&res)
	if err != nil {
		return "", false
	}
	if name, ok := res["set"].(string); ok {
		return name, true
	}
	return "", true
}

func probeServerVersion(ctx context.Context, db *mongo.Database) (string, bool) {
	var res bson.M
	err := db.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&res)
	if err != nil {
		return "", false
	}
	if v, ok := res["version"].(string); ok {
		return v, true
	}
	return "", false
}

// probeSearchEngine reports whether listing search indexes on some
// collection succeeds without an "unsupported" error (spec §4.1
// "hasSearchEngine").
func probeSearchEngine(ctx context.Context, db *mongo.Database) bool {
	coll := db.Collection("__clawmongo_probe__")
	cur, err := coll.Aggregate(ctx, bson.A{bson.M{"$listSearchIndexes": bson.M{}}})
	if err != nil {
		return false
	}
	defer cur.Close(ctx)
	return true
}

// probeTransactions attempts a trivial session+transaction body as a
// fallback when replica-set status is inconclusive (spec §4.1:
// "implied by ... successful session start with a trivial txn body").
func probeTransactions(ctx context.Context, db *mongo.Database) bool {
	client := db.Client()
	sess, err := client.StartSession()
	if err != nil {
		return false
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, nil
	})
	return err == nil
}

// featuresForTier maps tier + server version to the feature set (spec
// §4.1: "standalone ⇒ none; replicaset ⇒ transactions, change streams;
// fullstack ⇒ + text search, + vector search (+ rank/score fusion gated by
// server version ≥ 8.0 / ≥ 8.2)").
func featuresForTier(tier Tier, serverVersion string) Features {
	var f Features
	switch tier {
	case TierFullstack:
		f.TextSearch = true
		f.VectorSearch = true
		fallthrough
	case TierReplicaSet:
		f.Transactions = true
		f.ChangeStreams = true
	}
	if tier == TierFullstack {
		f.RankFusion = versionAtLeast(serverVersion, 8, 0)
		f.ScoreFusion = versionAtLeast(serverVersion, 8, 2)
	}
	return f
}

// versionAtLeast compares a "major.minor.patch"-style version string
// against (major, minor). An unknown version never satisfies the check.
func versionAtLeast(version string, major, minor int) bool {
	if version == "" || version == "unknown" {
		return false
	}
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	gotMajor, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	gotMinor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	if gotMajor != major {
		return gotMajor > major
	}
	return gotMinor >= minor
}
