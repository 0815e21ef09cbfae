package x86_64

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/cwj-lang/cwj/internal/backend"
	"github.com/cwj-lang/cwj/internal/types"
)

// Invariant: a value spilled to make room for a fresh one must reload
// its original contents on the next reference, and the register that
// took its place in the meantime must never be overwritten with the
// stale spilled value first. This is the exact five-live-value
// sequence a function call with more than four arguments produces:
// four values fill every register, a fifth forces alloc to spill the
// first one's physical slot, and CopyArg then asks for the two values
// back in reverse (last argument first), mirroring genCall's copy
// order.
func TestSpillRoundTripDoesNotClobberFreshValueAfterEviction(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)

	regs := make([]backend.Reg, 4)
	for i := range regs {
		regs[i] = b.LoadInt(int64(i), types.INT)
	}
	evicted := regs[0]

	fresh := b.LoadInt(99, types.INT)

	if _, resident := b.owner[evicted]; resident {
		t.Fatal("the evicted register must no longer be resident once alloc spills it")
	}
	slot, spilled := b.spillSlot[evicted]
	if !spilled {
		t.Fatal("the evicted register's old value must be recorded as spilled")
	}
	if b.phys(fresh) != 0 {
		t.Fatalf("fresh value should have taken over physical slot 0, got %d", b.phys(fresh))
	}

	// genCall's CopyArg loop runs last-to-first: the fresh value (would
	// be the 5th argument) is copied before the evicted one.
	b.CopyArg(fresh, 0)
	out := buf.String()
	if !strings.Contains(out, "movq\t%r8, %rdi") {
		t.Fatalf("expected the fresh value (still resident in %%r8) copied to %%rdi untouched, got:\n%s", out)
	}
	if strings.Count(out, "movq\t-8(%rbp)") > 0 {
		t.Fatalf("copying the fresh, still-resident value must not reload anything, got:\n%s", out)
	}

	// Now the evicted value is asked for. Its physical slot was freed
	// by the CopyArg above, so reload should recover the original
	// value from the scratch slot rather than handing back fresh's.
	b.CopyArg(evicted, 1)
	out = buf.String()
	wantReload := "movq\t" + strconv.Itoa(slot) + "(%rbp), %r8"
	if !strings.Contains(out, wantReload) {
		t.Fatalf("expected reload of the evicted value from its scratch slot (%q), got:\n%s", wantReload, out)
	}
	if !strings.Contains(out, "movq\t%r8, %rsi") {
		t.Fatalf("expected the reloaded evicted value copied to %%rsi, got:\n%s", out)
	}
	reloadIdx := strings.Index(out, wantReload)
	copyIdx := strings.Index(out, "movq\t%r8, %rsi")
	if reloadIdx == -1 || copyIdx == -1 || reloadIdx > copyIdx {
		t.Fatalf("reload must happen before the value is copied into the argument register, got:\n%s", out)
	}
}

// Invariant: alloc never hands out a logical register id already in
// use by a still-live value, even across a spill -- the bug this
// guards against conflated a freshly spilled-and-reused physical slot
// with the value that used to live there.
func TestAllocNeverAliasesALiveLogicalRegister(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)

	seen := map[backend.Reg]bool{}
	var all []backend.Reg
	for i := 0; i < 8; i++ {
		r := b.LoadInt(int64(i), types.INT)
		if seen[r] {
			t.Fatalf("alloc returned logical register %d twice while still live", r)
		}
		seen[r] = true
		all = append(all, r)
	}
	// Every one of the 8 values must still be individually reachable,
	// either resident or spilled, never silently dropped.
	for _, r := range all {
		_, resident := b.owner[r]
		_, spilled := b.spillSlot[r]
		if !resident && !spilled {
			t.Fatalf("register %d is neither resident nor spilled -- its value was lost", r)
		}
	}
}

func TestFreeAllRegistersClearsSpillBookkeeping(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	for i := 0; i < 5; i++ {
		b.LoadInt(int64(i), types.INT)
	}
	if len(b.spillSlot) == 0 {
		t.Fatal("expected at least one spilled register to set up this test")
	}
	b.FreeAllRegisters(backend.NoReg)
	if len(b.owner) != 0 {
		t.Errorf("FreeAllRegisters left %d resident registers, want 0", len(b.owner))
	}
	if len(b.spillSlot) != 0 {
		t.Errorf("FreeAllRegisters left %d spilled registers, want 0", len(b.spillSlot))
	}
	for i, r := range b.physOwner {
		if r != backend.NoReg {
			t.Errorf("physical slot %d still owned by %d after FreeAllRegisters", i, r)
		}
	}
}
