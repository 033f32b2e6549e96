package assignment

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Sochinenie/storage"
)

func catalogOf(n int) []storage.Topic {
	topics := make([]storage.Topic, 0, n)
	for i := 0; i < n; i++ {
		topics = append(topics, storage.Topic{ID: fmt.Sprintf("topic-%d", i), Active: true})
	}
	return topics
}

func TestPickNeverReturnsSeen(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	catalog := catalogOf(5)
	seen := []string{"topic-0", "topic-2", "topic-4"}

	for i := 0; i < 50; i++ {
		topic, err := Pick(catalog, seen, rnd)
		require.NoError(t, err)
		assert.NotContains(t, seen, topic.ID)
	}
}

func TestPickExhaustsWithoutRepetition(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	catalog := catalogOf(8)

	var seen []string
	picked := make(map[string]struct{})
	for i := 0; i < len(catalog); i++ {
		topic, err := Pick(catalog, seen, rnd)
		require.NoError(t, err)
		_, repeated := picked[topic.ID]
		require.False(t, repeated, "topic %s handed out twice", topic.ID)
		picked[topic.ID] = struct{}{}
		seen = append(seen, topic.ID)
	}

	_, err := Pick(catalog, seen, rnd)
	assert.ErrorIs(t, err, ErrTopicsExhausted)
}

func TestPickSkipsInactiveTopics(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	catalog := catalogOf(3)
	catalog[1].Active = false

	for i := 0; i < 30; i++ {
		topic, err := Pick(catalog, nil, rnd)
		require.NoError(t, err)
		assert.NotEqual(t, catalog[1].ID, topic.ID)
	}
}

func TestPickEmptyCatalog(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	_, err := Pick(nil, nil, rnd)
	assert.ErrorIs(t, err, ErrTopicsExhausted)
}

func TestPickCoversAllCandidates(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	catalog := catalogOf(4)

	hits := make(map[string]int)
	for i := 0; i < 400; i++ {
		topic, err := Pick(catalog, nil, rnd)
		require.NoError(t, err)
		hits[topic.ID]++
	}

	// Uniformity within loose bounds is all that is required.
	require.Len(t, hits, 4)
	for id, count := range hits {
		assert.Greater(t, count, 40, "topic %s starved", id)
	}
}
