package emulator

import "testing"

func TestCheckpointStoreAddFindDelete(t *testing.T) {
	s := NewCheckpointStore()

	cp := s.Add(Checkpoint{
		Memspace:  MemspaceComputer,
		StartAddr: 0x1000,
		EndAddr:   0x1000,
		Op:        OpExec,
		StopOnHit: true,
		Enabled:   true,
	})

	if cp.Number != 1 {
		t.Fatalf("expected first checkpoint number 1, got %d", cp.Number)
	}

	found := s.Find(cp.Number)
	if found == nil || found.StartAddr != 0x1000 {
		t.Fatalf("expected to find checkpoint at 0x1000, got %+v", found)
	}

	if !s.Delete(cp.Number) {
		t.Fatal("expected delete to succeed")
	}
	if s.Find(cp.Number) != nil {
		t.Fatal("expected checkpoint to be gone after delete")
	}
	if s.Delete(cp.Number) {
		t.Fatal("expected second delete to fail")
	}
}

func TestCheckpointStoreToggle(t *testing.T) {
	s := NewCheckpointStore()
	cp := s.Add(Checkpoint{Memspace: MemspaceComputer, StartAddr: 1, EndAddr: 1, Op: OpExec, Enabled: true})

	if !s.Toggle(cp.Number, false) {
		t.Fatal("expected toggle to succeed")
	}
	if s.Find(cp.Number).Enabled {
		t.Fatal("expected checkpoint to be disabled")
	}
}

func TestCheckpointStoreCheckRangeAndOp(t *testing.T) {
	s := NewCheckpointStore()
	s.Add(Checkpoint{
		Memspace:  MemspaceComputer,
		StartAddr: 0x2000,
		EndAddr:   0x2010,
		Op:        OpStore,
		StopOnHit: true,
		Enabled:   true,
	})

	// Wrong op: exec shouldn't match a store-only checkpoint.
	if hits := s.Check(MemspaceComputer, OpExec, 0x2000); len(hits) != 0 {
		t.Fatalf("expected no hits for wrong op, got %d", len(hits))
	}

	// Out of range.
	if hits := s.Check(MemspaceComputer, OpStore, 0x3000); len(hits) != 0 {
		t.Fatalf("expected no hits out of range, got %d", len(hits))
	}

	// In range, matching op.
	hits := s.Check(MemspaceComputer, OpStore, 0x2008)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if !hits[0].Stop {
		t.Error("expected stop=true")
	}
	if hits[0].Checkpoint.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", hits[0].Checkpoint.HitCount)
	}
}

func TestCheckpointStoreIgnoreCount(t *testing.T) {
	s := NewCheckpointStore()
	cp := s.Add(Checkpoint{
		Memspace:    MemspaceComputer,
		StartAddr:   0x100,
		EndAddr:     0x100,
		Op:          OpExec,
		StopOnHit:   true,
		Enabled:     true,
		IgnoreCount: 2,
	})

	for i := 0; i < 2; i++ {
		hits := s.Check(MemspaceComputer, OpExec, 0x100)
		if len(hits) != 1 || hits[0].Stop {
			t.Fatalf("expected ignored (non-stopping) hit %d", i)
		}
	}

	hits := s.Check(MemspaceComputer, OpExec, 0x100)
	if len(hits) != 1 || !hits[0].Stop {
		t.Fatal("expected third hit to stop once ignore_count is exhausted")
	}
	if cp.HitCount != 3 {
		t.Errorf("expected hit count 3, got %d", cp.HitCount)
	}
}

type fakeCondition struct{ result bool }

func (f fakeCondition) Eval(memspace int) (bool, error) { return f.result, nil }

func TestCheckpointStoreCondition(t *testing.T) {
	s := NewCheckpointStore()
	s.Add(Checkpoint{
		Memspace: MemspaceComputer, StartAddr: 1, EndAddr: 1, Op: OpExec,
		StopOnHit: true, Enabled: true,
	})
	cp := s.List()[0]
	s.SetCondition(cp.Number, "x0 == 5", fakeCondition{result: false})

	if hits := s.Check(MemspaceComputer, OpExec, 1); len(hits) != 0 {
		t.Fatalf("expected condition=false to suppress the hit entirely, got %d hits", len(hits))
	}
	if cp.HitCount != 0 {
		t.Errorf("expected no hit-count increment when condition is false, got %d", cp.HitCount)
	}

	s.SetCondition(cp.Number, "x0 == 5", fakeCondition{result: true})
	if hits := s.Check(MemspaceComputer, OpExec, 1); len(hits) != 1 {
		t.Fatalf("expected condition=true to fire, got %d hits", len(hits))
	}
}

func TestCheckpointStoreTemporaryDeletesAfterStop(t *testing.T) {
	s := NewCheckpointStore()
	cp := s.Add(Checkpoint{
		Memspace: MemspaceComputer, StartAddr: 1, EndAddr: 1, Op: OpExec,
		StopOnHit: true, Enabled: true, Temporary: true,
	})

	hits := s.Check(MemspaceComputer, OpExec, 1)
	if len(hits) != 1 || !hits[0].Stop {
		t.Fatal("expected temporary checkpoint to stop on first hit")
	}
	if s.Find(cp.Number) != nil {
		t.Fatal("expected temporary checkpoint to be removed after stopping")
	}
}
