package emulator

import (
	"sync"
)

// CheckpointOp is a bitmask of the access kinds a checkpoint triggers on.
type CheckpointOp uint8

const (
	OpLoad CheckpointOp = 1 << iota
	OpStore
	OpExec
)

// Has reports whether op is set in the mask.
func (m CheckpointOp) Has(op CheckpointOp) bool { return m&op != 0 }

// ConditionEvaluator evaluates a checkpoint's compiled condition against
// the current machine state, returning whether the checkpoint should
// actually fire. A nil evaluator means "no condition" and always fires.
type ConditionEvaluator interface {
	Eval(memspace int) (bool, error)
}

// Checkpoint is a breakpoint/watchpoint/tracepoint, spec.md §3.
type Checkpoint struct {
	Number      uint32
	Memspace    int
	StartAddr   uint64
	EndAddr     uint64
	Op          CheckpointOp
	StopOnHit   bool
	Enabled     bool
	Temporary   bool
	HitCount    uint32
	IgnoreCount uint32

	Condition     string
	ConditionEval ConditionEvaluator
}

// matches reports whether an access at addr, of the given op, against the
// given memspace, falls within this checkpoint's range and op mask.
func (cp *Checkpoint) matches(memspace int, op CheckpointOp, addr uint64) bool {
	if !cp.Enabled {
		return false
	}
	if cp.Memspace != memspace {
		return false
	}
	if !cp.Op.Has(op) {
		return false
	}
	return addr >= cp.StartAddr && addr <= cp.EndAddr
}

// CheckpointStore holds all checkpoints across all memspaces and decides,
// on each matched access, whether to actually stop (honoring condition
// and ignore_count, per original_source semantics: a condition that
// evaluates false never increments ignore_count; ignore_count decrements
// once per otherwise-eligible hit and suppresses the stop until it
// reaches zero).
type CheckpointStore struct {
	mu    sync.Mutex
	byNum map[uint32]*Checkpoint
	next  uint32
}

// NewCheckpointStore creates an empty store. VICE numbers checkpoints
// starting at 1; this store does the same so wire responses line up with
// what a human operator would expect from the textual monitor too.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		byNum: make(map[uint32]*Checkpoint),
		next:  1,
	}
}

// Add inserts a new checkpoint and assigns it a number.
func (s *CheckpointStore) Add(cp Checkpoint) *Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.Number = s.next
	s.next++
	stored := cp
	s.byNum[stored.Number] = &stored
	return &stored
}

// Find returns the checkpoint with the given number, or nil.
func (s *CheckpointStore) Find(num uint32) *Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byNum[num]
}

// Delete removes a checkpoint by number. Returns false if not found.
func (s *CheckpointStore) Delete(num uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNum[num]; !ok {
		return false
	}
	delete(s.byNum, num)
	return true
}

// Toggle enables or disables a checkpoint. Returns false if not found.
func (s *CheckpointStore) Toggle(num uint32, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byNum[num]
	if !ok {
		return false
	}
	cp.Enabled = enabled
	return true
}

// List returns all checkpoints, ordered by number.
func (s *CheckpointStore) List() []*Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Checkpoint, 0, len(s.byNum))
	for _, cp := range s.byNum {
		out = append(out, cp)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Number > out[j].Number; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// SetCondition attaches a compiled condition to a checkpoint.
func (s *CheckpointStore) SetCondition(num uint32, expr string, eval ConditionEvaluator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byNum[num]
	if !ok {
		return false
	}
	cp.Condition = expr
	cp.ConditionEval = eval
	return true
}

// Hit is the result of checking an access against the store: which
// checkpoint(s) fired, and whether emulation should actually stop.
type Hit struct {
	Checkpoint *Checkpoint
	Stop       bool
}

// Check evaluates a memory or execution access against every checkpoint
// in the given memspace and returns the checkpoints that fired. A
// checkpoint with a condition that evaluates false is skipped entirely —
// no hit count increment, no ignore_count decrement — matching VICE's
// "cond" semantics where the condition gates whether the breakpoint is
// considered hit at all.
func (s *CheckpointStore) Check(memspace int, op CheckpointOp, addr uint64) []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []Hit
	for _, cp := range s.byNum {
		if !cp.matches(memspace, op, addr) {
			continue
		}

		if cp.ConditionEval != nil {
			ok, err := cp.ConditionEval.Eval(memspace)
			if err != nil || !ok {
				continue
			}
		}

		cp.HitCount++

		stop := cp.StopOnHit
		if cp.IgnoreCount > 0 {
			cp.IgnoreCount--
			stop = false
		}

		hits = append(hits, Hit{Checkpoint: cp, Stop: stop})

		if stop && cp.Temporary {
			delete(s.byNum, cp.Number)
		}
	}
	return hits
}
