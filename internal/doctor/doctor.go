// Package doctor implements the Doctor / Health Probe (spec §4.12): a
// diagnostic connect-probe-report pass an operator runs to check a
// deployment's health and get actionable remediation advice.
package doctor

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/romiluz13/clawmongo/internal/store"
	"github.com/romiluz13/clawmongo/internal/topology"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ServerSelectionTimeout bounds the doctor's connect attempt (spec §4.12
// "5 s server-selection timeout").
const ServerSelectionTimeout = 5 * time.Second

// EmbeddingCoverage reports the chunks collection's embeddingStatus
// breakdown (spec §4.12 "coverage of embeddingStatus").
type EmbeddingCoverage struct {
	Success int64
	Failed  int64
	Pending int64
	Total   int64
}

// Report is Doctor's full diagnostic output.
type Report struct {
	URI        string // credentials redacted
	Connected  bool
	ConnectErr string

	Topology *topology.Topology
	Coverage EmbeddingCoverage

	Remediations []string
}

// Run connects to uri, probes capabilities, aggregates embedding coverage
// over collPrefix+"chunks", and assembles actionable remediations (spec
// §4.12). It never returns an error for a reachable-but-unhealthy
// deployment — connection failure is reported in Report.ConnectErr instead,
// so a caller can always render a report.
func Run(ctx context.Context, uri, database, collPrefix, embeddingMode string) (*Report, error) {
	report := &Report{URI: RedactURI(uri)}

	connectCtx, cancel := context.WithTimeout(ctx, ServerSelectionTimeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(ServerSelectionTimeout))
	if err != nil {
		report.ConnectErr = err.Error()
		report.Remediations = append(report.Remediations, remediationForConnectError(err))
		return report, nil
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(connectCtx, nil); err != nil {
		report.ConnectErr = err.Error()
		report.Remediations = append(report.Remediations, remediationForConnectError(err))
		return report, nil
	}
	report.Connected = true

	db := client.Database(database)
	topo, err := topology.Detect(ctx, db)
	if err != nil {
		report.ConnectErr = err.Error()
		return report, nil
	}
	report.Topology = topo

	colls := store.NewCollections(db, collPrefix)
	coverage, err := embeddingCoverage(ctx, colls)
	if err != nil {
		report.Remediations = append(report.Remediations, fmt.Sprintf("could not compute embedding coverage: %v", err))
	} else {
		report.Coverage = coverage
	}

	report.Remediations = append(report.Remediations, remediations(topo, coverage, embeddingMode)...)
	return report, nil
}

func embeddingCoverage(ctx context.Context, colls *store.Collections) (EmbeddingCoverage, error) {
	cur, err := colls.Chunks.Aggregate(ctx, bson.A{
		bson.M{"$group": bson.M{"_id": "$embeddingStatus", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return EmbeddingCoverage{}, err
	}
	defer cur.Close(ctx)

	var cov EmbeddingCoverage
	for cur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return EmbeddingCoverage{}, err
		}
		switch store.EmbeddingStatus(row.ID) {
		case store.EmbeddingSuccess:
			cov.Success = row.Count
		case store.EmbeddingFailed:
			cov.Failed = row.Count
		case store.EmbeddingPending:
			cov.Pending = row.Count
		}
		cov.Total += row.Count
	}
	return cov, cur.Err()
}

// remediations surfaces actionable advice (spec §4.12: "switch backend";
// "set API key"; "upgrade topology").
func remediations(topo *topology.Topology, cov EmbeddingCoverage, embeddingMode string) []string {
	var out []string
	if topo.Tier == topology.TierStandalone {
		out = append(out, "deployment is standalone: upgrade to a replica set to enable change streams and transactions")
	}
	if !topo.Features.VectorSearch {
		out = append(out, "no vector search engine detected: upgrade topology to a fullstack deployment (mongot) for semantic search, or accept plain-text-only search")
	}
	if cov.Total > 0 && cov.Failed > 0 {
		ratio := float64(cov.Failed) / float64(cov.Total)
		if ratio > 0.1 {
			out = append(out, fmt.Sprintf("%.0f%% of chunks failed embedding: check the embedding provider's API key and connectivity, or switch backend", ratio*100))
		}
	}
	if embeddingMode == "managed" && cov.Total == 0 {
		out = append(out, "embeddingMode is managed but no chunks have been indexed yet: run sync")
	}
	return out
}

func remediationForConnectError(err error) string {
	return fmt.Sprintf("could not connect: %v — verify the URI, that the server is reachable, and that credentials are correct", err)
}

// RedactURI replaces a mongodb:// URI's userinfo with "***:***" so
// credentials never appear in an echoed report (spec §4.12 "Redacts
// credentials in any URI it echoes").
func RedactURI(rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil || u.User == nil {
		return rawURI
	}
	u.User = url.UserPassword("***", "***")
	return u.String()
}
