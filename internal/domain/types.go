// Package domain holds the core RAG data model: collections, resources,
// chunks, feedback docs, adapters, and evaluation records.
package domain

import "time"

// ChunkingStrategy selects how a resource's content is split into chunks.
type ChunkingStrategy string

const (
	StrategyRecursive ChunkingStrategy = "recursive"
	StrategySemantic  ChunkingStrategy = "semantic"
	StrategyAgentic   ChunkingStrategy = "agentic"
	StrategyCustom    ChunkingStrategy = "custom"
)

// ResourceStatus tracks a resource through its ingestion lifecycle.
type ResourceStatus string

const (
	StatusLoaded  ResourceStatus = "loaded"
	StatusChunked ResourceStatus = "chunked"
	StatusDeleted ResourceStatus = "deleted"
	StatusError   ResourceStatus = "error"
)

// CollectionSettings governs a collection's embedding and chunking behavior.
type CollectionSettings struct {
	DenseModel    string           `json:"denseModel"`
	SparseModel   string           `json:"sparseModel,omitempty"`
	RerankerModel string           `json:"rerankerModel,omitempty"`
	ChunkSize     int              `json:"chunkSize"`
	ChunkOverlap  int              `json:"chunkOverlap"`
	Strategy      ChunkingStrategy `json:"strategy"`
	ChunkingURL   string           `json:"chunkingUrl,omitempty"`
	KeepDuplicate bool             `json:"keepDuplicate"`
}

// MaxChunkSize is the hard ceiling on CollectionSettings.ChunkSize.
const MaxChunkSize = 4000

// Collection is a named logical grouping of resources sharing indexing settings.
type Collection struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Settings    CollectionSettings `json:"settings"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ResourceChunkingOverride lets a single resource override collection chunking.
type ResourceChunkingOverride struct {
	ChunkSize    int              `json:"chunkSize,omitempty"`
	ChunkOverlap int              `json:"chunkOverlap,omitempty"`
	Strategy     ChunkingStrategy `json:"strategy,omitempty"`
}

// Resource is a source document belonging to one collection.
type Resource struct {
	ID           string                    `json:"id"`
	CollectionID string                    `json:"collectionId"`
	OwnerID      string                    `json:"ownerId"`
	Title        string                    `json:"title,omitempty"`
	URL          string                    `json:"url,omitempty"`
	Content      string                    `json:"content,omitempty"`
	Description  string                    `json:"description,omitempty"`
	Metadata     map[string]any            `json:"metadata,omitempty"`
	ContentHash  string                    `json:"contentHash,omitempty"`
	RefreshedAt  time.Time                 `json:"refreshedAt"`
	IsDeleted    bool                      `json:"isDeleted"`
	Status       ResourceStatus            `json:"status,omitempty"`
	StatusMsg    string                    `json:"statusMessage,omitempty"`
	Chunking     *ResourceChunkingOverride `json:"chunking,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

// DefaultOwnerID is used when a resource or query does not specify one.
const DefaultOwnerID = "public"

// SparseVector is a bag-of-terms representation (BM25/SPLADE-style).
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Chunk is a unit of retrieval derived from a resource.
type Chunk struct {
	ID           string         `json:"id"`
	Data         string         `json:"data"`
	VectorSource string         `json:"vectorSource,omitempty"`
	ResourceID   string         `json:"resourceId"`
	CollectionID string         `json:"collectionId"`
	OwnerID      string         `json:"ownerId"`
	Index        int            `json:"index"`
	Vector       []float32      `json:"vector,omitempty"`
	SparseVector *SparseVector  `json:"sparseVector,omitempty"`
	RerankVector [][]float32    `json:"rerankVector,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// FeedbackHit is the per-chunk aggregate inside a FeedbackDoc.
type FeedbackHit struct {
	ResourceID string `json:"resourceId"`
	Count      int    `json:"count"`
}

// FeedbackDoc aggregates upvote/downvote counts for a representative query.
type FeedbackDoc struct {
	ID           string                 `json:"id"`
	Query        string                 `json:"query"`
	CollectionID string                 `json:"collectionId"`
	OwnerID      string                 `json:"ownerId"`
	Hits         map[string]FeedbackHit `json:"hits"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// AdapterRecord is the persisted state of a collection's linear projection.
type AdapterRecord struct {
	CollectionID  string      `json:"collectionId"`
	Weights       [][]float64 `json:"weights"`
	Bias          []float64   `json:"bias"`
	InputDim      int         `json:"inputDim"`
	OutputDim     int         `json:"outputDim"`
	TrainingCount int         `json:"trainingCount"`
}

// EvalTestCase is a single gold query/expected-chunks pair.
type EvalTestCase struct {
	ID              string    `json:"id"`
	CollectionID    string    `json:"collectionId"`
	OwnerID         string    `json:"ownerId"`
	Query           string    `json:"query"`
	ExpectedChunkIDs []string `json:"expectedChunkIds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// EvalCaseResult is the per-case outcome of running an EvalRun.
type EvalCaseResult struct {
	TestCaseID      string   `json:"testCaseId"`
	Query           string   `json:"query"`
	RetrievedIDs    []string `json:"retrievedIds"`
	Hit             bool     `json:"hit"`
	Recall          float64  `json:"recall"`
	ReciprocalRank  float64  `json:"reciprocalRank"`
}

// EvalRun is a snapshot of metrics from running all test cases of a collection.
type EvalRun struct {
	ID              string           `json:"id"`
	CollectionID    string           `json:"collectionId"`
	OwnerID         string           `json:"ownerId"`
	OverallAccuracy float64          `json:"overallAccuracy"`
	AverageRecall   float64          `json:"averageRecall"`
	MRR             float64          `json:"mrr"`
	HitCount        int              `json:"hitCount"`
	TotalCases      int              `json:"totalCases"`
	FailedCases     []EvalCaseResult `json:"failedCases"`
	Results         []EvalCaseResult `json:"results"`
	RanAt           time.Time        `json:"ranAt"`
}
