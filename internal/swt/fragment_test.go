package swt

import "testing"

func TestFragmentStore_OpenAppendFinish(t *testing.T) {
	var s fragmentStore
	s.open(ContentLog)
	s.append(ContentLog, 'h')
	s.append(ContentLog, 'i')
	got := s.finish(ContentLog)
	if string(got) != "hi" {
		t.Fatalf("expected %q, got %q", "hi", got)
	}
	// Slot must be cleared after finish.
	if s.set[classIndex(ContentLog)] {
		t.Fatalf("expected slot cleared after finish")
	}
}

func TestFragmentStore_AbortDiscards(t *testing.T) {
	var s fragmentStore
	s.open(ContentProc)
	s.append(ContentProc, 'x')
	s.abort(ContentProc)
	if s.set[classIndex(ContentProc)] {
		t.Fatalf("expected slot cleared after abort")
	}
	// finish on an aborted (unset) slot returns nil.
	if got := s.finish(ContentProc); got != nil {
		t.Fatalf("expected nil after abort, got %q", got)
	}
}

func TestFragmentStore_OverflowCaps(t *testing.T) {
	var s fragmentStore
	s.open(ContentCmd)
	for i := 0; i < FragmentMax+100; i++ {
		s.append(ContentCmd, 'a')
	}
	got := s.finish(ContentCmd)
	if len(got) != FragmentMax {
		t.Fatalf("expected %d bytes, got %d", FragmentMax, len(got))
	}
}

func TestFragmentStore_IndependentPerClass(t *testing.T) {
	var s fragmentStore
	s.open(ContentLog)
	s.append(ContentLog, 'a')
	s.open(ContentCmd)
	s.append(ContentCmd, 'b')

	if got := s.finish(ContentLog); string(got) != "a" {
		t.Fatalf("log fragment corrupted: %q", got)
	}
	if got := s.finish(ContentCmd); string(got) != "b" {
		t.Fatalf("cmd fragment corrupted: %q", got)
	}
}
