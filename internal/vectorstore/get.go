package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ragforge/ragcore/internal/domain"
)

// GetDense fetches a single point's dense vector by id, used by the feedback
// worker to retrieve an upvoted chunk's vector for adapter training.
func (s *Store) GetDense(ctx context.Context, collectionName, id string) ([]float32, error) {
	withVectors := &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}
	var resp *pb.GetResponse
	err := s.guarded(ctx, fmt.Sprintf("get point %s/%s", collectionName, id), func(ctx context.Context) error {
		var getErr error
		resp, getErr = s.points.Get(ctx, &pb.GetPoints{
			CollectionName: collectionName,
			Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
			WithVectors:    withVectors,
		})
		return getErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("%w: point %s not found in %s", domain.ErrNotFound, id, collectionName)
	}
	vectors := resp.Result[0].GetVectors()
	if vectors == nil {
		return nil, fmt.Errorf("point %s has no vectors", id)
	}
	named := vectors.GetVectors()
	if named == nil {
		return nil, fmt.Errorf("point %s has no named vectors", id)
	}
	dense, ok := named.Vectors[denseVectorName]
	if !ok {
		return nil, fmt.Errorf("point %s missing dense vector", id)
	}
	return dense.Data, nil
}
