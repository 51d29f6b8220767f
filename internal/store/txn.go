package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Mongo server error codes that mean "this deployment cannot run
// transactions" (spec §4.5: codes 20 illegal-operation, 263 no-such-
// transaction, or the "Transaction numbers are only allowed on a replica
// set" message).
const (
	mongoCodeIllegalOperation  = 20
	mongoCodeNoSuchTransaction = 263
)

// Writer performs the atomic per-file write protocol: delete-old-chunks,
// bulk-upsert new chunks, upsert file metadata — transactionally when the
// server supports it, degrading to three sequential non-transactional calls
// otherwise (spec §4.5 "Atomic per-file write").
//
// Degradation, once observed, is cached for the lifetime of the Writer so
// that subsequent files in the same sync don't re-attempt a doomed
// transaction (spec §8 scenario 6).
type Writer struct {
	client *mongo.Client
	files  *FileStore
	chunks *ChunkStore

	txnUnsupported atomic.Bool
}

// NewWriter constructs a Writer. client must be the same client that owns c.
func NewWriter(client *mongo.Client, c *Collections) *Writer {
	return &Writer{
		client: client,
		files:  NewFileStore(c),
		chunks: NewChunkStore(c),
	}
}

// Degraded reports whether this Writer has fallen back to non-transactional
// writes for the remainder of its lifetime.
func (w *Writer) Degraded() bool { return w.txnUnsupported.Load() }

// WriteFile performs the three-operation atomic write for one file: replace
// all chunks owned by file.Path with chunks, then upsert the files row.
// hasTransactions should reflect the capability probe's result; when false,
// WriteFile never attempts a transaction.
func (w *Writer) WriteFile(ctx context.Context, hasTransactions bool, file *File, chunks []*Chunk) error {
	if hasTransactions && !w.txnUnsupported.Load() {
		err := w.writeTransactional(ctx, file, chunks)
		if err == nil {
			return nil
		}
		if !isTransactionUnsupported(err) {
			return err
		}
		slog.Warn("store: server does not support transactions, degrading to non-transactional writes",
			slog.String("path", file.Path), slog.String("reason", err.Error()))
		w.txnUnsupported.Store(true)
	}
	return w.writeNonTransactional(ctx, file, chunks)
}

func (w *Writer) writeTransactional(ctx context.Context, file *File, chunks []*Chunk) error {
	sess, err := w.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	wc := writeconcern.Majority()
	txnOpts := mongo.TransactionOptions{
		WriteConcern: wc,
		ReadConcern:  readconcern.Majority(),
	}

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		if _, err := w.chunks.coll.BulkWrite(sc, replaceModelsForPath(file.Path, chunks)); err != nil {
			return nil, err
		}
		if _, err := w.files.coll.ReplaceOne(sc, idFilter(file.Path), stampedFile(file), upsertOpts()); err != nil {
			return nil, err
		}
		return nil, nil
	}, &txnOpts)
	return err
}

func (w *Writer) writeNonTransactional(ctx context.Context, file *File, chunks []*Chunk) error {
	if _, err := w.chunks.coll.BulkWrite(ctx, replaceModelsForPath(file.Path, chunks)); err != nil {
		return err
	}
	_, err := w.files.coll.ReplaceOne(ctx, idFilter(file.Path), stampedFile(file), upsertOpts())
	return err
}

// isTransactionUnsupported matches the server error shapes spec §4.5 names.
func isTransactionUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Code == mongoCodeIllegalOperation || cmdErr.Code == mongoCodeNoSuchTransaction {
			return true
		}
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed on a replica set")
}
