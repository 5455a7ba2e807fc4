// Package filtering implements the entity allow/deny list: a
// glob-based predicate ingestion consults before an upstream event ever
// reaches the event log.
package filtering

import "github.com/bmatcuk/doublestar/v4"

// BlockList matches an entity id against a list of glob patterns
// (`*`, `?`, character classes). An empty list blocks nothing.
type BlockList struct {
	patterns []string
}

// NewBlockList builds a BlockList from the given glob patterns.
func NewBlockList(patterns []string) *BlockList {
	cp := make([]string, len(patterns))
	copy(cp, patterns)
	return &BlockList{patterns: cp}
}

// ShouldBlock reports whether entityID matches any configured pattern.
// A malformed pattern never blocks (it fails the match silently) rather
// than panicking ingestion.
func (b *BlockList) ShouldBlock(entityID string) bool {
	for _, pattern := range b.patterns {
		if ok, err := doublestar.Match(pattern, entityID); err == nil && ok {
			return true
		}
	}
	return false
}
