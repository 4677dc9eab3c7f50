package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/vecingest/internal/db"
	"github.com/kailas-cloud/vecingest/internal/domain"
)

// DefaultKeyPrefix namespaces every key written by the repository.
const DefaultKeyPrefix = "vecingest:"

// store is the consumer interface for the vector store (ISP).
//
//nolint:interfacebloat // repository needs hash, set and index management operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo maps databases, collections and vectors onto Valkey keys and FT indexes.
//
// Key layout ({p} is the key prefix):
//
//	{p}databases                 SET of database names
//	{p}meta:{db}:{coll}          HASH collection metadata
//	{p}idx:{db}:{coll}           FT index over {p}data:{db}:{coll}:
//	{p}data:{db}:{coll}:{id}     HASH __vector + metadata fields
type Repo struct {
	store  store
	prefix string
}

// New creates a vector store repository. An empty prefix selects DefaultKeyPrefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// ListDatabases returns all registered database names, sorted.
func (r *Repo) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := r.store.SMembers(ctx, r.databasesKey())
	if err != nil {
		return nil, unavailable("list databases", err)
	}
	return names, nil
}

// CreateDatabase registers a database name. Registering an existing name is a no-op.
func (r *Repo) CreateDatabase(ctx context.Context, name string) error {
	if err := domain.ValidateName("database", name); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, r.databasesKey(), name); err != nil {
		return unavailable("create database "+name, err)
	}
	return nil
}

// ListCollections returns the collections of a database sorted by name.
func (r *Repo) ListCollections(ctx context.Context, database string) ([]domain.CollectionInfo, error) {
	keys, err := r.store.Scan(ctx, r.metaKey(database, "*"))
	if err != nil {
		return nil, unavailable("scan collections", err)
	}
	if len(keys) == 0 {
		return []domain.CollectionInfo{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, unavailable("hgetall multi collections", err)
	}

	infos := make([]domain.CollectionInfo, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		desc, err := descriptorFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse collection %s: %w", keys[i], err)
		}
		infos = append(infos, domain.CollectionInfo{Name: desc.Collection, Dimension: desc.Dimension})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// CreateCollection stores collection metadata then creates its FT index.
// The database must already be registered.
// On FT.CREATE failure the metadata is rolled back.
func (r *Repo) CreateCollection(ctx context.Context, desc domain.CollectionDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	known, err := r.store.SIsMember(ctx, r.databasesKey(), desc.Database)
	if err != nil {
		return unavailable("check database exists", err)
	}
	if !known {
		return fmt.Errorf("database %s: %w", desc.Database, domain.ErrNotFound)
	}

	metaKey := r.metaKey(desc.Database, desc.Collection)
	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return unavailable("check collection exists", err)
	}
	if exists {
		return fmt.Errorf("collection %s/%s: %w", desc.Database, desc.Collection, domain.ErrConflict)
	}

	indexDef, err := r.buildIndex(desc)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.HSet(ctx, metaKey, descriptorToHash(desc)); err != nil {
		return unavailable("hset collection "+desc.Collection, err)
	}

	if err := r.store.CreateIndex(ctx, indexDef); err != nil {
		cleanupErr := r.store.Del(ctx, metaKey)
		if errors.Is(err, db.ErrIndexExists) {
			return errors.Join(
				fmt.Errorf("index %s: %w", indexDef.Name, domain.ErrConflict), cleanupErr)
		}
		return errors.Join(unavailable("create index "+indexDef.Name, err), cleanupErr)
	}

	return nil
}

// DropCollection removes the index, every stored vector and the metadata of a collection.
func (r *Repo) DropCollection(ctx context.Context, database, collection string) error {
	metaKey := r.metaKey(database, collection)
	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return unavailable("check collection exists", err)
	}
	if !exists {
		return fmt.Errorf("collection %s/%s: %w", database, collection, domain.ErrNotFound)
	}

	indexName := r.indexName(database, collection)
	hasIndex, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return unavailable("check index exists", err)
	}
	if hasIndex {
		if err := r.store.DropIndex(ctx, indexName); err != nil {
			return unavailable("drop index", err)
		}
	}

	keys, err := r.store.Scan(ctx, r.dataPrefix(database, collection)+"*")
	if err != nil {
		return unavailable("scan vectors", err)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return unavailable("delete vectors", err)
	}

	if err := r.store.Del(ctx, metaKey); err != nil {
		return unavailable("delete collection metadata", err)
	}
	return nil
}

// InsertVectors writes vectors into a collection in one pipelined round-trip.
// A vector whose length differs from the collection dimension rejects the whole call.
func (r *Repo) InsertVectors(
	ctx context.Context, database, collection string, vectors []domain.VectorInsert,
) (domain.InsertAck, error) {
	if len(vectors) == 0 {
		return domain.InsertAck{}, nil
	}

	m, err := r.store.HGetAll(ctx, r.metaKey(database, collection))
	if err != nil {
		return domain.InsertAck{}, unavailable("hgetall collection "+collection, err)
	}
	if len(m) == 0 {
		return domain.InsertAck{}, fmt.Errorf("collection %s/%s: %w", database, collection, domain.ErrNotFound)
	}
	desc, err := descriptorFromHash(m)
	if err != nil {
		return domain.InsertAck{}, fmt.Errorf("parse collection %s: %w", collection, err)
	}

	items := make([]db.HashSetItem, len(vectors))
	for i, v := range vectors {
		if len(v.Vector) != desc.Dimension {
			return domain.InsertAck{}, fmt.Errorf("vector %d has %d dimensions, collection %s expects %d: %w",
				v.ID, len(v.Vector), collection, desc.Dimension, domain.ErrVectorDimMismatch)
		}
		items[i] = db.HashSetItem{
			Key:    r.dataKey(database, collection, v.ID),
			Fields: vectorToHash(v),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return domain.InsertAck{}, unavailable("insert vectors", err)
	}
	return domain.InsertAck{Inserted: len(items)}, nil
}

// CountVectors returns the number of vectors stored in a collection.
func (r *Repo) CountVectors(ctx context.Context, database, collection string) (int, error) {
	keys, err := r.store.Scan(ctx, r.dataPrefix(database, collection)+"*")
	if err != nil {
		return 0, unavailable("scan vectors", err)
	}
	return len(keys), nil
}

func (r *Repo) buildIndex(desc domain.CollectionDescriptor) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.indexName(desc.Database, desc.Collection)).
		Prefix(r.dataPrefix(desc.Database, desc.Collection)).
		Tag(fieldImgName).
		Numeric(fieldID).
		VectorHNSW(fieldVector, "vector", desc.Dimension, distanceFor(desc.Metric), desc.Index.M, desc.Index.EFConstruction).
		Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return def, nil
}

func distanceFor(m domain.DistanceMetric) db.DistanceMetric {
	switch m {
	case domain.DistanceCosine, "":
		return db.DistanceCosine
	default:
		return db.DistanceMetric(m)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrExternalService, err)
}

func (r *Repo) databasesKey() string {
	return r.prefix + "databases"
}

func (r *Repo) metaKey(database, collection string) string {
	return fmt.Sprintf("%smeta:%s:%s", r.prefix, database, collection)
}

func (r *Repo) indexName(database, collection string) string {
	return fmt.Sprintf("%sidx:%s:%s", r.prefix, database, collection)
}

func (r *Repo) dataPrefix(database, collection string) string {
	return fmt.Sprintf("%sdata:%s:%s:", r.prefix, database, collection)
}

func (r *Repo) dataKey(database, collection string, id int64) string {
	return fmt.Sprintf("%s%d", r.dataPrefix(database, collection), id)
}
