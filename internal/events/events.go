package events

import (
	"context"
)

// Event topic constants
const (
	TopicMessageAppended = "scuttle.message.appended"
	TopicBatchAppended   = "scuttle.batch.appended"
	TopicIndexesRebuilt  = "scuttle.indexes.rebuilt"
)

// Event types

// MessageAppended is published once per message in an appended batch.
type MessageAppended struct {
	ID       string `json:"id"` // event id (nanoid)
	Key      string `json:"key"`
	Author   string `json:"author"`
	Sequence int64  `json:"sequence"`
	FlumeSeq int64  `json:"flume_seq"`
}

// BatchAppended is published once per accepted batch.
type BatchAppended struct {
	ID       string `json:"id"`
	Count    int    `json:"count"`
	FirstSeq int64  `json:"first_seq"`
	LastSeq  int64  `json:"last_seq"`
}

// IndexesRebuilt is published after a successful index rebuild.
type IndexesRebuilt struct {
	ID        string `json:"id"`
	LatestSeq *int64 `json:"latest_seq"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
