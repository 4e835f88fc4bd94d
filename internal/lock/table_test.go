package lock

import "testing"

func TestTryLockExclusive(t *testing.T) {
	tab := NewTable(2, 1)
	if !tab.TryLock(1, Move) {
		t.Fatalf("expected channel 1 to acquire Move")
	}
	if tab.TryLock(2, Move) {
		t.Fatalf("expected channel 2 to be refused Move while held")
	}
	if !tab.TryLock(1, Move) {
		t.Fatalf("re-acquiring an already-owned resource should succeed")
	}
}

func TestUnlockFreesResource(t *testing.T) {
	tab := NewTable(2, 1)
	tab.TryLock(1, Move)
	tab.Unlock(1, Move)
	if !tab.TryLock(2, Move) {
		t.Fatalf("expected Move to be free after Unlock")
	}
}

func TestUnlockAllExceptKeepsPushedSet(t *testing.T) {
	tab := NewTable(2, 1)
	tab.TryLock(1, Move)
	held := tab.SnapshotHeld(1)
	tab.TryLock(1, FileSystem)
	tab.UnlockAllExcept(1, held)
	if !tab.Owns(1, Move) {
		t.Fatalf("Move should remain held, it was in the pushed snapshot")
	}
	if tab.Owns(1, FileSystem) {
		t.Fatalf("FileSystem should have been released, it was acquired after the push")
	}
}

func TestHeaterAndFanResourcesAreDistinct(t *testing.T) {
	tab := NewTable(2, 2)
	h0 := tab.Heater(0)
	h1 := tab.Heater(1)
	f0 := tab.Fan(0)
	f1 := tab.Fan(1)
	if h0 == h1 || h0 == f0 || f0 == f1 {
		t.Fatalf("expected distinct resource ids: h0=%d h1=%d f0=%d f1=%d", h0, h1, f0, f1)
	}
	if !tab.TryLock(1, h0) || !tab.TryLock(1, f1) {
		t.Fatalf("expected independent heater/fan locks to both succeed")
	}
}

func TestTryLockRejectsOutOfOrderAcquisition(t *testing.T) {
	tab := NewTable(2, 1)
	tab.TryLock(1, FileSystem)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic acquiring Move while FileSystem is already held")
		}
	}()
	tab.TryLock(1, Move)
}

func TestBitmapRoundtrip(t *testing.T) {
	var b Bitmap
	b = b.Set(Move)
	b = b.Set(FileSystem)
	if !b.Has(Move) || !b.Has(FileSystem) {
		t.Fatalf("expected both bits set")
	}
	b = b.Clear(Move)
	if b.Has(Move) {
		t.Fatalf("expected Move bit cleared")
	}
	if !b.Has(FileSystem) {
		t.Fatalf("expected FileSystem bit to remain set")
	}
}
