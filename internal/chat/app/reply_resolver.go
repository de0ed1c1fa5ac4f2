package app

import "github.com/pawtograder/platform-sub008/internal/chat/domain"

// Resolve find the stored message m replies to, nil when not loaded yet
func Resolve(m domain.UnifiedMessage, timeline []domain.UnifiedMessage) *domain.UnifiedMessage {
	if m.ReplyToID == nil {
		return nil
	}
	for i := range timeline {
		if timeline[i].IsStored() && timeline[i].ID == *m.ReplyToID {
			found := timeline[i]
			return &found
		}
	}
	return nil
}

// ReplyIndex id -> stored message of one timeline
type ReplyIndex struct {
	byID map[int64]domain.UnifiedMessage
}

// NewReplyIndex index the stored entries of timeline
func NewReplyIndex(timeline []domain.UnifiedMessage) *ReplyIndex {
	idx := &ReplyIndex{byID: make(map[int64]domain.UnifiedMessage, len(timeline))}
	for _, m := range timeline {
		if m.IsStored() {
			idx.byID[m.ID] = m
		}
	}
	return idx
}

// Resolve same as the package level Resolve in O(1)
func (idx *ReplyIndex) Resolve(m domain.UnifiedMessage) *domain.UnifiedMessage {
	if idx == nil || m.ReplyToID == nil {
		return nil
	}
	found, ok := idx.byID[*m.ReplyToID]
	if !ok {
		return nil
	}
	return &found
}

// Lookup stored message by id
func (idx *ReplyIndex) Lookup(id int64) (domain.UnifiedMessage, bool) {
	if idx == nil {
		return domain.UnifiedMessage{}, false
	}
	m, ok := idx.byID[id]
	return m, ok
}
