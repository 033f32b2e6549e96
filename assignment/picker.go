package assignment

import (
	"errors"
	"math/rand"

	"Sochinenie/storage"
)

// ErrTopicsExhausted means the user has been assigned every active
// topic in the catalog. Topics are never recycled.
var ErrTopicsExhausted = errors.New("no unseen topics left")

// Pick selects uniformly at random among active topics the user has not
// seen. The randomness source is the caller's so tests can pin it.
func Pick(catalog []storage.Topic, seenIDs []string, rnd *rand.Rand) (*storage.Topic, error) {
	seen := make(map[string]struct{}, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = struct{}{}
	}

	var candidates []storage.Topic
	for _, t := range catalog {
		if !t.Active {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		candidates = append(candidates, t)
	}

	if len(candidates) == 0 {
		return nil, ErrTopicsExhausted
	}
	topic := candidates[rnd.Intn(len(candidates))]
	return &topic, nil
}
