package service

import (
	"sync"
	"testing"
)

func TestStampedeTracker_RecordMissAndHit(t *testing.T) {
	st := newStampedeTracker()
	key := "44.8176,20.4599"

	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss first = %d, want 1", got)
	}
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("RecordMiss second = %d, want 2", got)
	}
	st.RecordHit(key)
	if got := st.Active(key); got != 1 {
		t.Errorf("Active after one hit = %d, want 1", got)
	}
	st.RecordHit(key)
	st.RecordHit(key) // extra hit must not go negative
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss after clear = %d, want 1", got)
	}
}

func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss("k")
			st.RecordHit("k")
		}()
	}
	wg.Wait()
	if got := st.Active("k"); got != 0 {
		t.Errorf("Active after balanced calls = %d, want 0", got)
	}
}
