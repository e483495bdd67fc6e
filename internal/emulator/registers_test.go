package emulator

import "testing"

func TestNonSynthetic(t *testing.T) {
	filtered := NonSynthetic(ComputerRegisters())
	for _, d := range filtered {
		if d.Synthetic {
			t.Fatalf("NonSynthetic leaked synthetic register %s", d.Name)
		}
	}
	// 14 total, 2 synthetic (FLAGS, HEAPPTR) -> 12 left.
	if len(filtered) != 12 {
		t.Errorf("expected 12 non-synthetic computer registers, got %d", len(filtered))
	}
}

func TestReadWriteComputerRegister(t *testing.T) {
	core, err := NewCore()
	if err != nil {
		t.Fatalf("failed to create core: %v", err)
	}
	defer core.Close()

	if err := WriteComputerRegister(core, RegIDX3, 0xCAFE); err != nil {
		t.Fatalf("write X3 failed: %v", err)
	}
	v, ok := ReadComputerRegister(core, RegIDX3)
	if !ok || v != 0xCAFE {
		t.Errorf("expected X3=0xCAFE, got 0x%x (ok=%v)", v, ok)
	}

	if err := WriteComputerRegister(core, RegIDFlags, 1); err == nil {
		t.Error("expected writing a synthetic register to fail")
	}

	if _, ok := ReadComputerRegister(core, RegIDFlags); !ok {
		t.Error("expected reading synthetic FLAGS register to succeed")
	}
}

func TestDriveRegisters(t *testing.T) {
	d, err := NewDriveCore(MemspaceDrive8)
	if err != nil {
		t.Fatalf("failed to create drive core: %v", err)
	}

	if err := WriteDriveRegister(d, DriveRegIDTrack, 18); err != nil {
		t.Fatalf("write track failed: %v", err)
	}
	v, ok := ReadDriveRegister(d, DriveRegIDTrack)
	if !ok || v != 18 {
		t.Errorf("expected track=18, got %d (ok=%v)", v, ok)
	}

	if err := WriteDriveRegister(d, DriveRegIDStatus, 0); err == nil {
		t.Error("expected writing synthetic STATUS register to fail")
	}
}

func TestNewDriveCoreRejectsComputerMemspace(t *testing.T) {
	if _, err := NewDriveCore(MemspaceComputer); err == nil {
		t.Error("expected error creating a drive core for memspace 0")
	}
}
