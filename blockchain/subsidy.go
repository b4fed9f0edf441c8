// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/bits"

	"github.com/solidus-chain/solidusd/chaincfg"
)

// CalcBlockSubsidy returns the base subsidy of a block:
// subsidy = initial_reward >> (height / halving_interval), zero after
// params.MaxHalvings halvings.
func CalcBlockSubsidy(height uint32, params *chaincfg.Params) int64 {
	halvings := int64(height) / params.HalvingInterval
	if halvings >= params.MaxHalvings {
		return 0
	}
	return params.InitialSubsidy >> uint(halvings)
}

// RewardSplit is the PoW/PoS division of a block's total reward
// (subsidy + fees).
type RewardSplit struct {
	TotalReward   int64
	PoSTotal      int64 // divided equally among this block's voting tickets
	PoWMinerShare int64 // paid by the coinbase
	PerVoterShare int64
}

// CalcRewardSplit divides subsidy+fees between the PoW miner and the
// tickets that voted on this block, using saturating 64-bit arithmetic.
// Any remainder left by dividing the PoS share evenly among numVoters
// tickets is paid to the miner rather than dropped.
func CalcRewardSplit(height uint32, fees int64, numVoters int, params *chaincfg.Params) RewardSplit {
	subsidy := CalcBlockSubsidy(height, params)
	total := saturatingAdd(subsidy, fees)

	var perVoter int64
	if numVoters > 0 {
		posTotal := mulDivPPM(total, params.PoSRewardRatioPPM)
		perVoter = posTotal / int64(numVoters)
	}

	posPaid := perVoter * int64(numVoters)
	return RewardSplit{
		TotalReward:   total,
		PoSTotal:      posPaid,
		PoWMinerShare: total - posPaid,
		PerVoterShare: perVoter,
	}
}

// mulDivPPM computes v * ppm / 1_000_000 without overflowing int64, using
// bits.Mul64/bits.Div64's 128-bit intermediate product.
func mulDivPPM(v, ppm int64) int64 {
	const million = 1_000_000
	hi, lo := bits.Mul64(uint64(v), uint64(ppm))
	q, _ := bits.Div64(hi, lo, million)
	return int64(q)
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return 1<<63 - 1
		}
		return -(1 << 63)
	}
	return sum
}
