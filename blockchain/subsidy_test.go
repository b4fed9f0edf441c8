// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/solidus-chain/solidusd/chaincfg"
)

func TestCalcBlockSubsidy(t *testing.T) {
	params := chaincfg.MainNetParams()

	tests := []struct {
		height uint32
		want   int64
	}{
		{0, 50_000_000_000},
		{1, 50_000_000_000},
		{209_999, 50_000_000_000},
		{210_000, 25_000_000_000},
		{419_999, 25_000_000_000},
		{420_000, 12_500_000_000},
	}
	for _, test := range tests {
		if got := CalcBlockSubsidy(test.height, params); got != test.want {
			t.Errorf("CalcBlockSubsidy(%d) = %d, want %d", test.height, got, test.want)
		}
	}

	// Subsidy is zero after the final halving.
	pastEnd := uint32(int64(params.MaxHalvings) * params.HalvingInterval)
	if got := CalcBlockSubsidy(pastEnd, params); got != 0 {
		t.Errorf("subsidy after %d halvings = %d, want 0", params.MaxHalvings, got)
	}
}

func TestCalcRewardSplit(t *testing.T) {
	params := chaincfg.MainNetParams()

	// 30% of the total goes to PoS, divided among the voters; the
	// division remainder stays with the miner.
	split := CalcRewardSplit(1, 1_000_000, 3, params)
	total := CalcBlockSubsidy(1, params) + 1_000_000
	if split.TotalReward != total {
		t.Fatalf("TotalReward = %d, want %d", split.TotalReward, total)
	}
	posTotal := total * params.PoSRewardRatioPPM / 1_000_000
	wantPerVoter := posTotal / 3
	if split.PerVoterShare != wantPerVoter {
		t.Fatalf("PerVoterShare = %d, want %d", split.PerVoterShare, wantPerVoter)
	}
	if split.PoSTotal != wantPerVoter*3 {
		t.Fatalf("PoSTotal = %d, want %d", split.PoSTotal, wantPerVoter*3)
	}
	if split.PoWMinerShare+split.PoSTotal != total {
		t.Fatalf("shares do not add up: %d + %d != %d", split.PoWMinerShare, split.PoSTotal, total)
	}

	// With no voters the miner receives everything.
	solo := CalcRewardSplit(1, 0, 0, params)
	if solo.PoWMinerShare != solo.TotalReward || solo.PerVoterShare != 0 {
		t.Fatalf("no-voter split = %+v", solo)
	}
}

func TestTotalSupplyMatchesSubsidySchedule(t *testing.T) {
	params := chaincfg.SimNetParams()
	params.HalvingInterval = 10
	params.MaxHalvings = 3

	var total int64
	for h := uint32(0); h < 50; h++ {
		total += CalcBlockSubsidy(h, params)
	}
	// 10 blocks at full subsidy, 10 at half, 10 at quarter, then zero.
	s := params.InitialSubsidy
	want := 10*s + 10*(s>>1) + 10*(s>>2)
	if total != want {
		t.Fatalf("total supply = %d, want %d", total, want)
	}
}
