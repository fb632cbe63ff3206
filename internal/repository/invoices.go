package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lensworks/invoicelens/internal/common"
	"github.com/lensworks/invoicelens/internal/entity"
)

// ScoredInvoice pairs a retrieved record with its vector similarity score.
type ScoredInvoice struct {
	Invoice *entity.Invoice
	Score   float64
}

// InvoiceRepository is the persistence boundary for invoice records. Every
// read is tenant-scoped and excludes soft-deleted records.
type InvoiceRepository interface {
	Insert(ctx context.Context, inv *entity.Invoice) (primitive.ObjectID, error)
	GetByID(ctx context.Context, tenantID string, id primitive.ObjectID) (*entity.Invoice, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Invoice, error)
	ListByDateRange(ctx context.Context, tenantID, from, to string) ([]*entity.Invoice, error)
	VectorSearch(ctx context.Context, tenantID string, vector []float32, candidatePool, limit int) ([]ScoredInvoice, error)
	SoftDelete(ctx context.Context, tenantID string, id primitive.ObjectID) error
	Replace(ctx context.Context, tenantID string, id primitive.ObjectID, inv *entity.Invoice) error
}

type mongoInvoices struct {
	pool      *Pool
	logger    *slog.Logger
	anomalies atomic.Int64
}

// NewInvoiceRepository creates the MongoDB-backed invoice repository.
func NewInvoiceRepository(pool *Pool, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &mongoInvoices{pool: pool, logger: logger}
}

func (r *mongoInvoices) Insert(ctx context.Context, inv *entity.Invoice) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	if inv.ID.IsZero() {
		inv.ID = primitive.NewObjectID()
	}
	if inv.LineItems == nil {
		inv.LineItems = []entity.LineItem{}
	}

	if _, err := r.pool.Collection().InsertOne(ctx, inv); err != nil {
		return primitive.NilObjectID, common.NewAppError("DB_ERROR", fmt.Sprintf("insert invoice: %v", err), common.ErrDatabase)
	}
	r.logger.Debug("repository.insert.ok", "record_id", inv.ID.Hex(), "tenant_id", inv.TenantID)
	return inv.ID, nil
}

func (r *mongoInvoices) GetByID(ctx context.Context, tenantID string, id primitive.ObjectID) (*entity.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	var raw bson.M
	err := r.pool.Collection().FindOne(ctx, r.scope(tenantID, bson.M{"_id": id})).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("get invoice: %v", err), common.ErrDatabase)
	}

	inv, diags := decodeDocument(raw)
	r.report(diags)
	if inv.IsDeleted {
		// sentinel from an unreadable document; treat as absent
		return nil, common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)
	}
	return inv, nil
}

func (r *mongoInvoices) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cur, err := r.pool.Collection().Find(ctx, r.scope(tenantID, nil), opts)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("list invoices: %v", err), common.ErrDatabase)
	}
	return r.drain(ctx, cur)
}

func (r *mongoInvoices) ListByDateRange(ctx context.Context, tenantID, from, to string) ([]*entity.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	// canonical YYYY-MM-DD dates order lexicographically; records whose date
	// failed decoding are stored blank and fall outside any $gte bound
	filter := r.scope(tenantID, bson.M{"date": bson.M{"$gte": from, "$lte": to}})
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "uploaded_at", Value: -1}})
	cur, err := r.pool.Collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("list invoices by date: %v", err), common.ErrDatabase)
	}
	return r.drain(ctx, cur)
}

func (r *mongoInvoices) VectorSearch(ctx context.Context, tenantID string, vector []float32, candidatePool, limit int) ([]ScoredInvoice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	// tenant_id and is_deleted must be declared as filter fields on the
	// Atlas vector index alongside the summary_embedding vector path.
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: r.pool.VectorIndex()},
			{Key: "path", Value: "summary_embedding"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: candidatePool},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{
				{Key: "tenant_id", Value: tenantID},
				{Key: "is_deleted", Value: bson.D{{Key: "$ne", Value: true}}},
			}},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cur, err := r.pool.Collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("vector search: %v", err), common.ErrDatabase)
	}
	defer cur.Close(ctx)

	var out []ScoredInvoice
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			raw = nil
		}
		score, _ := asFloat(raw["score"])
		inv, diags := decodeDocument(raw)
		r.report(diags)
		if inv.IsDeleted {
			continue
		}
		if !inv.HasEmbedding() {
			r.logger.Warn("repository.vector.skip_unembedded", "record_id", inv.ID.Hex())
			continue
		}
		out = append(out, ScoredInvoice{Invoice: inv, Score: score})
	}
	if err := cur.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("vector search cursor: %v", err), common.ErrDatabase)
	}
	return out, nil
}

func (r *mongoInvoices) SoftDelete(ctx context.Context, tenantID string, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"is_deleted": true, "deleted_at": now}}
	res, err := r.pool.Collection().UpdateOne(ctx, r.scope(tenantID, bson.M{"_id": id}), update)
	if err != nil {
		return common.NewAppError("DB_ERROR", fmt.Sprintf("soft delete invoice: %v", err), common.ErrDatabase)
	}
	if res.MatchedCount > 0 {
		r.logger.Info("repository.soft_delete.ok", "record_id", id.Hex(), "tenant_id", tenantID)
		return nil
	}

	// distinguish already-deleted (idempotent success) from never-existed
	n, err := r.pool.Collection().CountDocuments(ctx, bson.M{"_id": id, "tenant_id": tenantID})
	if err != nil {
		return common.NewAppError("DB_ERROR", fmt.Sprintf("soft delete lookup: %v", err), common.ErrDatabase)
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)
	}
	return nil
}

func (r *mongoInvoices) Replace(ctx context.Context, tenantID string, id primitive.ObjectID, inv *entity.Invoice) error {
	ctx, cancel := context.WithTimeout(ctx, r.pool.QueryTimeout())
	defer cancel()

	inv.ID = id
	inv.TenantID = tenantID
	if inv.LineItems == nil {
		inv.LineItems = []entity.LineItem{}
	}

	res, err := r.pool.Collection().ReplaceOne(ctx, r.scope(tenantID, bson.M{"_id": id}), inv)
	if err != nil {
		return common.NewAppError("DB_ERROR", fmt.Sprintf("replace invoice: %v", err), common.ErrDatabase)
	}
	if res.MatchedCount == 0 {
		return common.NewAppError("NOT_FOUND", "invoice not found", common.ErrNotFound)
	}
	r.logger.Info("repository.replace.ok", "record_id", id.Hex(), "tenant_id", tenantID)
	return nil
}

// scope builds the baseline filter applied to every read: the caller's
// tenant only, soft-deleted records excluded.
func (r *mongoInvoices) scope(tenantID string, extra bson.M) bson.M {
	f := bson.M{
		"tenant_id":  tenantID,
		"is_deleted": bson.M{"$ne": true},
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

func (r *mongoInvoices) drain(ctx context.Context, cur *mongo.Cursor) ([]*entity.Invoice, error) {
	defer cur.Close(ctx)

	out := make([]*entity.Invoice, 0)
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			raw = nil
		}
		inv, diags := decodeDocument(raw)
		r.report(diags)
		if inv.IsDeleted {
			continue
		}
		out = append(out, inv)
	}
	if err := cur.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", fmt.Sprintf("cursor: %v", err), common.ErrDatabase)
	}
	return out, nil
}

func (r *mongoInvoices) report(diags []DecodeDiagnostic) {
	for _, d := range diags {
		n := r.anomalies.Add(1)
		r.logger.Warn("repository.decode.anomaly",
			"record_id", d.RecordID,
			"field", d.Field,
			"reason", d.Reason,
			"anomaly_count", n,
		)
	}
}
