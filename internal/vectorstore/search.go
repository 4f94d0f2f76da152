package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ragforge/ragcore/internal/domain"
)

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func buildFilter(f Filter) *pb.Filter {
	if f.OwnerID == "" && f.ResourceID == "" && len(f.OwnerIDs) == 0 {
		return nil
	}
	var must []*pb.Condition
	var should []*pb.Condition
	if f.OwnerID != "" {
		must = append(must, fieldMatch("ownerId", f.OwnerID))
	}
	if len(f.OwnerIDs) > 0 {
		for _, id := range f.OwnerIDs {
			should = append(should, fieldMatch("ownerId", id))
		}
	}
	if f.ResourceID != "" {
		must = append(must, fieldMatch("resourceId", f.ResourceID))
	}
	return &pb.Filter{Must: must, Should: should}
}

func hasIDFilter(ids []string, base *pb.Filter) *pb.Filter {
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	f := &pb.Filter{HasId: pointIDs}
	if base != nil {
		f.Must = base.Must
	}
	return f
}

func (s *Store) searchNamed(ctx context.Context, collectionName, vectorName string, vector []float32, limit uint64, filter *pb.Filter) ([]ScoredPoint, error) {
	exact := false
	withPayload := &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
	var resp *pb.SearchResponse
	err := s.guarded(ctx, fmt.Sprintf("search %s/%s", collectionName, vectorName), func(ctx context.Context) error {
		var searchErr error
		resp, searchErr = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: collectionName,
			Vector:         vector,
			VectorName:     &vectorName,
			Limit:          limit,
			Filter:         filter,
			WithPayload:    withPayload,
			Params: &pb.SearchParams{
				HnswEf:      ptrU64(hnswEF),
				Exact:       &exact,
				IndexedOnly: ptrBool(true),
			},
		})
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return toScoredPoints(resp.Result), nil
}

// DenseQuery performs a plain dense-vector search.
func (s *Store) DenseQuery(ctx context.Context, collectionName string, vector []float32, limit uint64, filter Filter) ([]ScoredPoint, error) {
	return s.searchNamed(ctx, collectionName, denseVectorName, vector, limit, buildFilter(filter))
}

// HybridQuery prefetches dense and sparse candidates (2K each) and fuses
// them with Reciprocal Rank Fusion, k=60.
func (s *Store) HybridQuery(ctx context.Context, collectionName string, dense []float32, sparse *domain.SparseVector, limit uint64, filter Filter) ([]ScoredPoint, error) {
	f := buildFilter(filter)

	denseResults, err := s.searchNamed(ctx, collectionName, denseVectorName, dense, hybridPrefetchLimit, f)
	if err != nil {
		return nil, err
	}
	if sparse == nil {
		return truncate(denseResults, limit), nil
	}

	sparseResults, err := s.searchSparse(ctx, collectionName, sparse, hybridPrefetchLimit, f)
	if err != nil {
		return nil, err
	}

	fused := ReciprocalRankFusion(denseResults, sparseResults)
	return truncate(fused, limit), nil
}

func (s *Store) searchSparse(ctx context.Context, collectionName string, sparse *domain.SparseVector, limit uint64, filter *pb.Filter) ([]ScoredPoint, error) {
	exact := false
	withPayload := &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
	var resp *pb.SearchResponse
	err := s.guarded(ctx, "sparse search "+collectionName, func(ctx context.Context) error {
		var searchErr error
		resp, searchErr = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: collectionName,
			SparseIndices:  &pb.SparseIndices{Data: sparse.Indices},
			Vector:         sparse.Values,
			VectorName:     strPtr(sparseVectorName),
			Limit:          limit,
			Filter:         filter,
			WithPayload:    withPayload,
			Params:         &pb.SearchParams{Exact: &exact},
		})
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return toScoredPoints(resp.Result), nil
}

// RerankQuery restricts the search to candidateIDs and orders them by the
// rerank named vector's multi-vector max_sim comparator.
func (s *Store) RerankQuery(ctx context.Context, collectionName string, rerankVector [][]float32, candidateIDs []string, limit uint64) ([]ScoredPoint, error) {
	flat := make([]float32, 0, len(rerankVector)*len(rerankVector[0]))
	for _, row := range rerankVector {
		flat = append(flat, row...)
	}
	vecCount := uint32(len(rerankVector))
	withPayload := &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}

	var resp *pb.SearchResponse
	err := s.guarded(ctx, "rerank search "+collectionName, func(ctx context.Context) error {
		var searchErr error
		resp, searchErr = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: collectionName,
			Vector:         flat,
			VectorName:     strPtr(rerankVectorName),
			VectorsCount:   &vecCount,
			Limit:          limit,
			Filter:         hasIDFilter(candidateIDs, nil),
			WithPayload:    withPayload,
		})
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return toScoredPoints(resp.Result), nil
}

// DeleteByResource purges every point belonging to resourceID.
func (s *Store) DeleteByResource(ctx context.Context, collectionName, resourceID string) error {
	return s.guarded(ctx, fmt.Sprintf("delete resource %s from %s", resourceID, collectionName), func(ctx context.Context) error {
		_, err := s.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: collectionName,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Filter{
					Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch("resourceId", resourceID)}},
				},
			},
		})
		return err
	})
}

func toScoredPoints(results []*pb.ScoredPoint) []ScoredPoint {
	out := make([]ScoredPoint, len(results))
	for i, r := range results {
		out[i] = ScoredPoint{
			ID:      pointIDString(r.Id),
			Score:   float64(r.Score),
			Payload: payloadToMap(r.Payload),
		}
	}
	return out
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u, ok := id.PointIdOptions.(*pb.PointId_Uuid); ok {
		return u.Uuid
	}
	if n, ok := id.PointIdOptions.(*pb.PointId_Num); ok {
		return fmt.Sprintf("%d", n.Num)
	}
	return ""
}

func payloadToMap(p map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch k := v.Kind.(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func truncate(points []ScoredPoint, limit uint64) []ScoredPoint {
	if uint64(len(points)) <= limit {
		return points
	}
	return points[:limit]
}

func ptrU64(v uint64) *uint64 { return &v }
func ptrBool(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
