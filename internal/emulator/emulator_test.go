package emulator

import (
	"testing"
)

// ARM64 test code: MOV X0, #5; MOV X1, #3; ADD X2, X0, X1; RET
var addTestCode = []byte{
	0xa0, 0x00, 0x80, 0xd2, // MOV X0, #5
	0x61, 0x00, 0x80, 0xd2, // MOV X1, #3
	0x02, 0x00, 0x01, 0x8b, // ADD X2, X0, X1
	0xc0, 0x03, 0x5f, 0xd6, // RET
}

func TestCoreBasic(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	if err := core.LoadCode(addTestCode); err != nil {
		t.Fatalf("failed to load code: %v", err)
	}

	sentinel := uint64(0xDEADBEEF)
	if err := core.SetLR(sentinel); err != nil {
		t.Fatalf("failed to set LR: %v", err)
	}

	endAddr := CodeBase + uint64(len(addTestCode))
	err = core.Run(CodeBase, endAddr)
	if err != nil {
		t.Logf("expected stop error: %v", err)
	}

	if x2 := core.X(2); x2 != 8 {
		t.Errorf("expected X2=8, got X2=%d", x2)
	}
	if core.X(0) != 5 {
		t.Errorf("expected X0=5, got X0=%d", core.X(0))
	}
	if core.X(1) != 3 {
		t.Errorf("expected X1=3, got X1=%d", core.X(1))
	}
}

func TestMemoryOperations(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	addr := uint64(HeapBase)
	val := uint64(0x123456789ABCDEF0)

	if err := core.MemWriteU64(addr, val); err != nil {
		t.Fatalf("failed to write U64: %v", err)
	}

	readVal, err := core.MemReadU64(addr)
	if err != nil {
		t.Fatalf("failed to read U64: %v", err)
	}
	if readVal != val {
		t.Errorf("U64 mismatch: wrote 0x%x, read 0x%x", val, readVal)
	}

	strAddr := core.Malloc(64)
	testStr := "Hello, vicemon!"

	if err := core.MemWriteString(strAddr, testStr); err != nil {
		t.Fatalf("failed to write string: %v", err)
	}

	readStr, err := core.MemReadString(strAddr, 64)
	if err != nil {
		t.Fatalf("failed to read string: %v", err)
	}
	if readStr != testStr {
		t.Errorf("string mismatch: wrote %q, read %q", testStr, readStr)
	}
}

func TestMalloc(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	addr1 := core.Malloc(100)
	addr2 := core.Malloc(200)
	addr3 := core.Malloc(50)

	if addr1%16 != 0 {
		t.Errorf("addr1 not 16-byte aligned: 0x%x", addr1)
	}
	if addr2%16 != 0 {
		t.Errorf("addr2 not 16-byte aligned: 0x%x", addr2)
	}
	if addr3%16 != 0 {
		t.Errorf("addr3 not 16-byte aligned: 0x%x", addr3)
	}

	size1 := uint64(112) // 100 rounded to 16
	size2 := uint64(208) // 200 rounded to 16

	if addr2 < addr1+size1 {
		t.Errorf("addr2 overlaps addr1")
	}
	if addr3 < addr2+size2 {
		t.Errorf("addr3 overlaps addr2")
	}
}

func TestMemHook(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	if err := core.LoadCode(addTestCode); err != nil {
		t.Fatalf("failed to load code: %v", err)
	}

	var reads, writes int
	core.HookMem(func(c *Core, kind byte, addr uint64, size int, value uint64) {
		switch kind {
		case 'r':
			reads++
		case 'w':
			writes++
		}
	})

	strAddr := core.Malloc(8)
	if err := core.MemWriteU64(strAddr, 42); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, err := core.MemReadU64(strAddr); err != nil {
		t.Fatalf("failed to read: %v", err)
	}

	if err := core.SetLR(0xDEADBEEF); err != nil {
		t.Fatalf("failed to set LR: %v", err)
	}
	endAddr := CodeBase + uint64(len(addTestCode))
	_ = core.Run(CodeBase, endAddr)

	t.Logf("mem hook saw %d reads, %d writes during direct MemRead/MemWrite + run", reads, writes)
}

func TestCodeHook(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	if err := core.LoadCode(addTestCode); err != nil {
		t.Fatalf("failed to load code: %v", err)
	}

	instrCount := 0
	core.HookCode(func(c *Core, addr uint64, size uint32) {
		instrCount++
	})

	if err := core.SetLR(0xDEADBEEF); err != nil {
		t.Fatalf("failed to set LR: %v", err)
	}

	endAddr := CodeBase + uint64(len(addTestCode))
	_ = core.Run(CodeBase, endAddr)

	if instrCount != 4 {
		t.Errorf("expected 4 instructions, got %d", instrCount)
	}
}
