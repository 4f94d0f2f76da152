package domain

import "strings"

// ValidateCollectionSettings checks the invariants a Collection's settings
// must satisfy before it is accepted.
func ValidateCollectionSettings(s CollectionSettings) error {
	if strings.TrimSpace(s.DenseModel) == "" {
		return NewValidationError("denseModel", s.DenseModel, ErrInvalidCollection)
	}
	if s.ChunkSize <= 0 || s.ChunkSize > MaxChunkSize {
		return NewValidationError("chunkSize", s.ChunkSize, ErrInvalidCollection)
	}
	switch s.Strategy {
	case StrategyRecursive, StrategySemantic, StrategyAgentic, StrategyCustom, "":
	default:
		return NewValidationError("strategy", s.Strategy, ErrInvalidCollection)
	}
	if s.Strategy == StrategyCustom && strings.TrimSpace(s.ChunkingURL) == "" {
		return NewValidationError("chunkingUrl", s.ChunkingURL, ErrInvalidCollection)
	}
	return nil
}

// ValidateQuery checks a query request's required fields.
func ValidateQuery(query, collectionID string) error {
	if strings.TrimSpace(query) == "" {
		return NewValidationError("query", query, ErrInvalidQuery)
	}
	if strings.TrimSpace(collectionID) == "" {
		return NewValidationError("collectionId", collectionID, ErrInvalidQuery)
	}
	return nil
}

// OwnerOrDefault returns ownerID, falling back to DefaultOwnerID when blank.
func OwnerOrDefault(ownerID string) string {
	if strings.TrimSpace(ownerID) == "" {
		return DefaultOwnerID
	}
	return ownerID
}
