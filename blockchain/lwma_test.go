// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"testing"

	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/wire"
)

// fakeWindow builds window+1 headers with a constant inter-block spacing
// and constant difficulty.
func fakeWindow(params *chaincfg.Params, spacing int64, bits uint32) []*wire.BlockHeader {
	n := int(params.LWMAWindow) + 1
	headers := make([]*wire.BlockHeader, n)
	ts := int64(1_700_000_000)
	for i := 0; i < n; i++ {
		headers[i] = &wire.BlockHeader{
			Timestamp: ts,
			Bits:      bits,
			Height:    uint32(i),
		}
		ts += spacing
	}
	return headers
}

func TestLWMAInitialDifficulty(t *testing.T) {
	params := chaincfg.MainNetParams()
	initial := BigToCompact(params.PowLimit)

	// Too few headers: the initial difficulty applies.
	short := fakeWindow(params, params.TargetBlockTimeSeconds, initial)[:10]
	if got := LWMANextBits(params, short); got != initial {
		t.Fatalf("LWMANextBits with short history = %08x, want %08x", got, initial)
	}
}

func TestLWMAOnTargetKeepsDifficulty(t *testing.T) {
	params := chaincfg.MainNetParams()
	// Use a mid-range difficulty so the retarget can move both ways.
	bits := BigToCompact(new(big.Int).Rsh(params.PowLimit, 32))

	headers := fakeWindow(params, params.TargetBlockTimeSeconds, bits)
	got := LWMANextBits(params, headers)

	// On-target spacing must reproduce (approximately, one compact
	// quantum) the same work value.
	gotWork := WorkFromBits(got)
	wantWork := WorkFromBits(bits)
	diff := new(big.Int).Sub(gotWork, wantWork)
	diff.Abs(diff)
	// Tolerate compact-encoding quantization only: the mantissa's least
	// significant byte.
	limit := new(big.Int).Rsh(wantWork, 15)
	if diff.Cmp(limit) > 0 {
		t.Fatalf("on-target retarget moved work from %v to %v", wantWork, gotWork)
	}
}

func TestLWMAMonotoneDirection(t *testing.T) {
	params := chaincfg.MainNetParams()
	bits := BigToCompact(new(big.Int).Rsh(params.PowLimit, 32))
	baseWork := WorkFromBits(LWMANextBits(params, fakeWindow(params, params.TargetBlockTimeSeconds, bits)))

	// Faster blocks: the target (work value here) must shrink, meaning
	// difficulty rises.
	fast := LWMANextBits(params, fakeWindow(params, params.TargetBlockTimeSeconds/3, bits))
	if WorkFromBits(fast).Cmp(baseWork) >= 0 {
		t.Fatalf("faster blocks did not decrease the target: %v -> %v", baseWork, WorkFromBits(fast))
	}

	// Slower blocks: the target must grow, meaning difficulty drops.
	slow := LWMANextBits(params, fakeWindow(params, params.TargetBlockTimeSeconds*3, bits))
	if WorkFromBits(slow).Cmp(baseWork) <= 0 {
		t.Fatalf("slower blocks did not increase the target: %v -> %v", baseWork, WorkFromBits(slow))
	}
}

func TestLWMAClampsToPowLimit(t *testing.T) {
	params := chaincfg.MainNetParams()
	bits := BigToCompact(params.PowLimit)

	// Far slower than target at minimum difficulty already: must clamp
	// to the limit, never exceed it.
	got := LWMANextBits(params, fakeWindow(params, params.TargetBlockTimeSeconds*100, bits))
	if TargetFromBits(got).Cmp(params.PowLimit) > 0 {
		t.Fatalf("retarget exceeded the proof-of-work limit: %08x", got)
	}
}

func TestCompactRoundTrip(t *testing.T) {
	tests := []uint32{
		0x1d00ffff,
		0x1b0404cb,
		0x207fffff,
		0x1e7fffff,
	}
	for _, bits := range tests {
		work := WorkFromBits(bits)
		if got := BitsFromWork(work); got != bits {
			t.Errorf("bits %08x -> work %v -> bits %08x", bits, work, got)
		}
	}

	// Arbitrary work values must round-trip through compact encoding
	// with at most compact quantization loss, and the re-encoded bits
	// must never represent more work than the original.
	for _, shift := range []uint{10, 50, 100, 200} {
		work := new(big.Int).Lsh(big.NewInt(0x5ca1ab1e), shift)
		bits := BitsFromWork(work)
		back := WorkFromBits(bits)
		if back.Cmp(work) > 0 {
			t.Errorf("re-encoded work %v exceeds original %v", back, work)
		}
	}
}

func TestCheckHeaderTimestamp(t *testing.T) {
	params := chaincfg.MainNetParams()
	now := int64(1_800_000_000)
	prev := &wire.BlockHeader{Timestamp: now - 600}

	ok := &wire.BlockHeader{Timestamp: now - 300}
	if err := CheckHeaderTimestamp(ok, prev, now, params); err != nil {
		t.Fatalf("valid timestamp rejected: %v", err)
	}

	stale := &wire.BlockHeader{Timestamp: prev.Timestamp}
	if err := CheckHeaderTimestamp(stale, prev, now, params); err == nil {
		t.Fatal("non-increasing timestamp accepted")
	}

	future := &wire.BlockHeader{Timestamp: now + params.MaxTimeAdjustSeconds + 1}
	if err := CheckHeaderTimestamp(future, prev, now, params); err == nil {
		t.Fatal("far-future timestamp accepted")
	}
}

func TestAddWork(t *testing.T) {
	var acc [16]byte
	bits := uint32(0x1d00ffff)
	one := BlockWork(bits)
	if one.Sign() <= 0 {
		t.Fatal("block work is not positive")
	}

	acc = AddWork(acc, bits)
	acc = AddWork(acc, bits)
	got := CumulativeWorkBig(acc)
	want := new(big.Int).Mul(one, big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Fatalf("cumulative work = %v, want %v", got, want)
	}

	// A harder target (smaller) contributes more fork-choice work.
	easier := BlockWork(0x1d00ffff)
	harder := BlockWork(0x1b0404cb)
	if harder.Cmp(easier) <= 0 {
		t.Fatal("harder difficulty did not contribute more work")
	}
}
