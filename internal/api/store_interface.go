package api

import (
	"context"
	"encoding/json"
)

// Document is one record of a collection. ParticipantID is the join key
// between a survey's question and image collections.
type Document struct {
	ID            int64
	ParticipantID string
	Body          json.RawMessage
}

// JoinedDocument is a left document with every right document sharing its
// participant id, in insertion order.
type JoinedDocument struct {
	Left  Document
	Right []Document
}

type Store interface {
	InsertMany(ctx context.Context, collection string, docs []Document) error
	FindPage(ctx context.Context, collection string, skip, limit int) ([]Document, error)
	AggregateJoin(ctx context.Context, left, right string, skip, limit int) ([]JoinedDocument, error)
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*memoryStore)(nil)
