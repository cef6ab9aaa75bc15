package projection

// isThreadActive treats a thread as active when its conversation
// metadata reports a non-empty current-activity label (spec 3.2
// ConversationMetadata.current-activity is exactly this signal).
func (s *Store) isThreadActive(threadID string) bool {
	meta, ok := s.convMeta[threadID]
	return ok && meta.CurrentActivity != ""
}

// ActiveConversationCount counts how many of the given thread ids are
// currently active. Empty input yields 0 (spec 8 scenario 1).
func (s *Store) ActiveConversationCount(threadIDs []string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range threadIDs {
		if s.isThreadActive(id) {
			count++
		}
	}
	return count
}

// DelegationActivityByConversationID reports, for each direct child
// conversation, whether it or any of its transitive descendants
// (delegated sub-conversations) is active. allDescendants is the
// flattened set of ids reachable from any direct child, inclusive of
// the children themselves; membership under a specific child is
// resolved by walking ParentConversationID links recorded by the
// projection (spec 8 scenario 2).
func (s *Store) DelegationActivityByConversationID(directChildren []string, allDescendants []string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]bool, len(directChildren))
	for _, child := range directChildren {
		result[child] = false
	}

	for _, id := range allDescendants {
		if !s.isThreadActive(id) {
			continue
		}
		if root := s.delegationRootAmong(id, directChildren); root != "" {
			result[root] = true
		}
	}

	return result
}

// delegationRootAmong walks parent links from id upward until it finds
// one of candidates, or runs out of parents.
func (s *Store) delegationRootAmong(id string, candidates []string) string {
	seen := make(map[string]bool)
	current := id
	for current != "" && !seen[current] {
		for _, c := range candidates {
			if c == current {
				return c
			}
		}
		seen[current] = true
		thread, ok := s.threads[current]
		if !ok {
			return ""
		}
		current = thread.ParentConversationID
	}
	return ""
}
