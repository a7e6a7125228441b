package queue

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

type label string

func (l label) IsEmpty() bool { return l == "" }
func (l label) Label() string { return string(l) }

func newReq(id string) *request.Request {
	return request.New(label("item-"+id), request.Identity{ID: id, Name: "name-" + id}, nil, request.KindLink)
}

func byID(id string) func(*request.Request) bool {
	return func(r *request.Request) bool { return r.Requester().ID == id }
}

func drainIDs(q *Queue) []string {
	var ids []string
	for {
		r, ok := q.TryDequeue()
		if !ok {
			return ids
		}
		ids = append(ids, r.Requester().ID)
	}
}

func TestQueue_TierThenFIFO(t *testing.T) {
	q := New()
	q.Enqueue(newReq("A"), Tier2)
	q.Enqueue(newReq("B"), Tier1)
	q.Enqueue(newReq("C"), Tier2)

	assert.Equal(t, []string{"B", "A", "C"}, drainIDs(q))
}

func TestQueue_TryDequeue_Empty(t *testing.T) {
	q := New()
	r, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Nil(t, r)
	assert.Equal(t, 0, q.Count())
}

func TestQueue_FreeTierLast(t *testing.T) {
	q := New()
	q.Enqueue(newReq("free1"), TierFree)
	q.Enqueue(newReq("t4"), Tier4)
	q.Enqueue(newReq("free2"), TierFree)
	q.Enqueue(newReq("t1"), Tier1)

	assert.Equal(t, []string{"t1", "t4", "free1", "free2"}, drainIDs(q))
}

func TestQueue_RandomInterleavingOrdering(t *testing.T) {
	tiers := []Tier{Tier1, Tier2, Tier3, Tier4, TierFree}
	rng := rand.New(rand.NewPCG(7, 11))

	for round := 0; round < 20; round++ {
		q := New()
		enqueueOrder := make(map[string]int)
		tierOf := make(map[string]Tier)
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("r%d-%d", round, i)
			tier := tiers[rng.IntN(len(tiers))]
			enqueueOrder[id] = i
			tierOf[id] = tier
			q.Enqueue(newReq(id), tier)

			// Interleave some dequeues with the enqueues.
			if rng.IntN(5) == 0 {
				q.TryDequeue()
			}
		}

		ids := drainIDs(q)
		for i := 1; i < len(ids); i++ {
			prev, cur := ids[i-1], ids[i]
			require.LessOrEqual(t, uint32(tierOf[prev]), uint32(tierOf[cur]), "tiers must be non-decreasing")
			if tierOf[prev] == tierOf[cur] {
				require.Less(t, enqueueOrder[prev], enqueueOrder[cur], "FIFO within a tier")
			}
		}
	}
}

func TestQueue_FindDoesNotRemove(t *testing.T) {
	q := New()
	q.Enqueue(newReq("A"), Tier3)
	q.Enqueue(newReq("B"), Tier1)

	r, ok := q.Find(byID("A"))
	require.True(t, ok)
	assert.Equal(t, "A", r.Requester().ID)
	assert.Equal(t, 2, q.Count())

	_, ok = q.Find(byID("Z"))
	assert.False(t, ok)

	// Identity equality makes duplicate checks independent of payload.
	other := request.New(label("other"), request.Identity{ID: "B", Name: "renamed"}, nil, request.KindDump)
	r, ok = q.Find(other.Equal)
	require.True(t, ok)
	assert.Equal(t, "name-B", r.Requester().Name)
}

func TestQueue_FindReturnsFirstInDequeueOrder(t *testing.T) {
	q := New()
	q.Enqueue(newReq("late"), Tier4)
	q.Enqueue(newReq("early"), Tier1)

	r, ok := q.Find(func(*request.Request) bool { return true })
	require.True(t, ok)
	assert.Equal(t, "early", r.Requester().ID)
}

func TestQueue_PositionRemoveSnapshot(t *testing.T) {
	q := New()
	q.Enqueue(newReq("A"), TierFree)
	q.Enqueue(newReq("B"), Tier2)
	q.Enqueue(newReq("C"), Tier2)

	assert.Equal(t, 1, q.Position(byID("B")))
	assert.Equal(t, 3, q.Position(byID("A")))
	assert.Equal(t, 0, q.Position(byID("Z")))

	removed, ok := q.Remove(byID("B"))
	require.True(t, ok)
	assert.Equal(t, "B", removed.Requester().ID)
	_, ok = q.Remove(byID("B"))
	assert.False(t, ok)

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "C", snap[0].Requester().ID)
	assert.Equal(t, "A", snap[1].Requester().ID)
	assert.Equal(t, 2, q.Count(), "snapshot must not consume")

	assert.Equal(t, []string{"C", "A"}, drainIDs(q))
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	q.Enqueue(newReq("A"), Tier1)
	q.Enqueue(newReq("B"), Tier1)
	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Count())
	q.Enqueue(newReq("C"), Tier1)
	assert.Equal(t, []string{"C"}, drainIDs(q))
}

func TestQueue_ConcurrentExactlyOnce(t *testing.T) {
	const producers, perProducer, consumers = 8, 250, 8
	q := New()

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]int)
	done := make(chan struct{})

	var prodWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		prodWG.Add(1)
		go func(p int) {
			defer prodWG.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(newReq(fmt.Sprintf("p%d-%d", p, i)), Tier(1+i%4))
			}
		}(p)
	}

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, ok := q.TryDequeue()
				if ok {
					mu.Lock()
					seen[r.Requester().ID]++
					mu.Unlock()
					continue
				}
				select {
				case <-done:
					// Final drain after producers finished.
					for {
						r, ok := q.TryDequeue()
						if !ok {
							return
						}
						mu.Lock()
						seen[r.Requester().ID]++
						mu.Unlock()
					}
				default:
				}
			}
		}()
	}

	prodWG.Wait()
	close(done)
	wg.Wait()

	require.Len(t, seen, producers*perProducer)
	for id, n := range seen {
		require.Equal(t, 1, n, "request %s dequeued %d times", id, n)
	}
	assert.Equal(t, 0, q.Count())
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"1", Tier1},
		{"4", Tier4},
		{"", TierFree},
		{"FREE", TierFree},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"0", "5", "-1", "gold"} {
		_, err := ParseTier(bad)
		assert.ErrorIs(t, err, ErrInvalidTier, bad)
		assert.ErrorIs(t, err, model.ErrInvalidArgument, bad)
	}
	assert.ErrorIs(t, Tier(7).Validate(), ErrInvalidTier)
	assert.Equal(t, "free", TierFree.String())
	assert.Equal(t, "2", Tier2.String())
}
