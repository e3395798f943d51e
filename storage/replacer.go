package storage

// lruKReplacer tracks the last K access timestamps per frame and selects an
// eviction victim among unpinned frames: the frame whose K-th most recent
// access is oldest. Frames with fewer than K recorded accesses are treated
// as having infinite backward K-distance and are preferred for eviction,
// ties broken by least-recent access time.
type lruKReplacer struct {
	k         int
	clock     int64
	history   map[int][]int64 // frame index -> access timestamps, newest last
	evictable map[int]bool
}

func newLRUKReplacer(k int) *lruKReplacer {
	if k < 1 {
		k = 1
	}
	return &lruKReplacer{
		k:         k,
		history:   make(map[int][]int64),
		evictable: make(map[int]bool),
	}
}

// RecordAccess logs an access to frame at the current logical clock tick.
func (r *lruKReplacer) RecordAccess(frame int) {
	r.clock++
	h := r.history[frame]
	h = append(h, r.clock)
	if len(h) > r.k {
		h = h[len(h)-r.k:]
	}
	r.history[frame] = h
}

// SetEvictable marks whether frame is a candidate for eviction.
func (r *lruKReplacer) SetEvictable(frame int, evictable bool) {
	r.evictable[frame] = evictable
}

// Remove forgets a frame entirely, e.g. after it is deleted from the pool.
func (r *lruKReplacer) Remove(frame int) {
	delete(r.history, frame)
	delete(r.evictable, frame)
}

// Victim returns the frame to evict and true, or (0, false) if none of the
// tracked frames are currently evictable.
func (r *lruKReplacer) Victim() (int, bool) {
	bestFrame := -1
	var bestKDist int64 = -1 // unset until a frame with k accesses is chosen; infinite distance is tracked by haveInfinite
	var bestLeastRecent int64 = 1<<63 - 1
	haveInfinite := false

	for frame, can := range r.evictable {
		if !can {
			continue
		}
		h := r.history[frame]
		if len(h) == 0 {
			continue
		}
		leastRecent := h[len(h)-1]

		if len(h) < r.k {
			// Infinite K-distance: prefer these, tie-break by least-recent access.
			if !haveInfinite || leastRecent < bestLeastRecent {
				haveInfinite = true
				bestFrame = frame
				bestLeastRecent = leastRecent
			}
			continue
		}
		if haveInfinite {
			continue
		}
		kDist := h[0] // k-th most recent access timestamp (oldest in the window)
		if bestFrame == -1 || kDist < bestKDist {
			bestFrame = frame
			bestKDist = kDist
		}
	}

	if bestFrame == -1 {
		return 0, false
	}
	return bestFrame, true
}

// Size reports the number of currently evictable frames.
func (r *lruKReplacer) Size() int {
	n := 0
	for _, can := range r.evictable {
		if can {
			n++
		}
	}
	return n
}
