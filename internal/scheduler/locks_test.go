package scheduler

import (
	"sync"
	"testing"
)

func TestResourceLockManager_SameNameExcludes(t *testing.T) {
	mgr := NewResourceLockManager()
	if !mgr.TryLockAll([]string{"star-genome"}) {
		t.Fatal("TryLockAll failed with nothing held")
	}
	if mgr.TryLockAll([]string{"star-genome"}) {
		t.Fatal("second holder acquired a held resource")
	}
	mgr.UnlockAll([]string{"star-genome"})
	if !mgr.TryLockAll([]string{"star-genome"}) {
		t.Fatal("resource still held after UnlockAll")
	}
	mgr.UnlockAll([]string{"star-genome"})
}

func TestResourceLockManager_DifferentNamesConcurrent(t *testing.T) {
	mgr := NewResourceLockManager()
	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			results <- mgr.TryLockAll([]string{name})
		}(name)
	}
	wg.Wait()
	close(results)
	for ok := range results {
		if !ok {
			t.Error("distinct resources excluded each other")
		}
	}
	mgr.UnlockAll([]string{"a", "b", "c"})
}

func TestResourceLockManager_TryLockAllIsAllOrNothing(t *testing.T) {
	mgr := NewResourceLockManager()
	if !mgr.TryLockAll([]string{"b"}) {
		t.Fatal("TryLockAll(b) failed with nothing held")
	}

	if mgr.TryLockAll([]string{"c", "a", "b"}) {
		t.Fatal("TryLockAll succeeded while b was held")
	}
	// a and c must have been released again.
	if !mgr.TryLockAll([]string{"a", "c"}) {
		t.Fatal("TryLockAll left a or c locked after failing")
	}
	mgr.UnlockAll([]string{"a", "c"})
	mgr.Unlock("b")

	if !mgr.TryLockAll([]string{"a", "b", "c"}) {
		t.Fatal("TryLockAll failed with nothing held")
	}
	mgr.UnlockAll([]string{"a", "b", "c"})
}

func TestResourceLockManager_DuplicateNames(t *testing.T) {
	mgr := NewResourceLockManager()
	if !mgr.TryLockAll([]string{"genome", "genome"}) {
		t.Fatal("TryLockAll deadlocked on a repeated name")
	}
	mgr.UnlockAll([]string{"genome", "genome"})
	if !mgr.TryLockAll([]string{"genome"}) {
		t.Fatal("UnlockAll with a repeated name left the resource held")
	}
	mgr.UnlockAll([]string{"genome"})
}

func TestResourceLockManager_Empty(t *testing.T) {
	mgr := NewResourceLockManager()
	if !mgr.TryLockAll(nil) {
		t.Error("TryLockAll(nil) = false")
	}
	mgr.UnlockAll(nil)
}

func TestResourceLockManager_UnlockUnknownIsNoop(t *testing.T) {
	mgr := NewResourceLockManager()
	mgr.Unlock("never-locked")
	if !mgr.TryLockAll([]string{"never-locked"}) {
		t.Error("TryLockAll failed after unlocking an unknown name")
	}
}
