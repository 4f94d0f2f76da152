package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
)

// Upsert writes points into collectionName, creating the collection (and
// its named-vector config) from the first point's shape if it doesn't
// already exist.
func (s *Store) Upsert(ctx context.Context, collectionName string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	first := points[0]
	if err := s.EnsureCollection(ctx, collectionName, first.Sparse != nil, len(first.Rerank) > 0, uint64(len(first.Dense))); err != nil {
		return err
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		ps, err := toPointStruct(p)
		if err != nil {
			return fmt.Errorf("build point %s: %w", p.ID, err)
		}
		structs[i] = ps
	}

	wait := true
	return s.guarded(ctx, "upsert into "+collectionName, func(ctx context.Context) error {
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collectionName,
			Wait:           &wait,
			Points:         structs,
		})
		return err
	})
}

func toPointStruct(p Point) (*pb.PointStruct, error) {
	named := map[string]*pb.Vector{
		denseVectorName: {Data: p.Dense},
	}
	if p.Sparse != nil {
		named[sparseVectorName] = &pb.Vector{
			Data:    p.Sparse.Values,
			Indices: &pb.SparseIndices{Data: p.Sparse.Indices},
		}
	}
	if len(p.Rerank) > 0 {
		flat := make([]float32, 0, len(p.Rerank)*len(p.Rerank[0]))
		for _, row := range p.Rerank {
			flat = append(flat, row...)
		}
		vecCount := uint32(len(p.Rerank))
		named[rerankVectorName] = &pb.Vector{Data: flat, VectorsCount: &vecCount}
	}

	payload := map[string]*pb.Value{
		"resourceId":   strValue(p.ResourceID),
		"collectionId": strValue(p.CollectionID),
		"ownerId":      strValue(p.OwnerID),
		"content":      strValue(p.Content),
	}
	for k, v := range p.Metadata {
		payload["metadata."+k] = toValue(v)
	}

	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{Vectors: &pb.NamedVectors{Vectors: named}}},
		Payload: payload,
	}, nil
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// toValue converts an arbitrary Go value from Resource/Chunk metadata into
// a Qdrant payload value, falling back to its string representation for
// types the payload schema doesn't model directly.
func toValue(v any) *pb.Value {
	switch t := v.(type) {
	case string:
		return strValue(t)
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	default:
		return strValue(fmt.Sprintf("%v", t))
	}
}
