package vectorstore

import "context"

// Client is the typed surface of the external vector database. Every method
// takes a context and is safe to call from concurrent goroutines.
// Implementations that wrap a blocking transport must not hold callers
// beyond the context deadline.
type Client interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, spec CollectionSpec) error
	// RecreateCollection drops any existing collection of the same name
	// first. Used for the high-churn Tier-1 collection at startup.
	RecreateCollection(ctx context.Context, spec CollectionSpec) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert writes points. wait=false returns before the write is
	// committed; the ingestion hot path relies on that.
	Upsert(ctx context.Context, collection string, points []Point, wait bool) error

	Scroll(ctx context.Context, collection string, req ScrollRequest) ([]Point, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredPoint, error)
	SearchGroups(ctx context.Context, collection string, req GroupRequest) ([]Group, error)
	Recommend(ctx context.Context, collection string, req RecommendRequest) ([]ScoredPoint, error)
}
