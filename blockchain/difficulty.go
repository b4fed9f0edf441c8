// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"

	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/wire"
)

// CompactToBig converts a compact "bits" representation (size byte plus a
// 23-bit mantissa, as carried in every header) into the big.Int it
// encodes. The same decomposition serves two purposes: as a PoW target,
// and as the raw "work" value the difficulty retarget averages over its
// window.
func CompactToBig(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	size := bits >> 24
	negative := bits&0x00800000 != 0

	var n *big.Int
	if size <= 3 {
		n = big.NewInt(int64(mantissa >> (8 * (3 - size))))
	} else {
		n = new(big.Int).SetUint64(uint64(mantissa))
		n.Lsh(n, uint(8*(size-3)))
	}
	if negative {
		n.Neg(n)
	}
	return n
}

// BigToCompact is the inverse of CompactToBig: the smallest-loss compact
// encoding of n. The inversion is canonical and deterministic: it always
// picks the largest size byte whose shifted mantissa does not exceed n,
// so WorkFromBits(BigToCompact(n)) <= n and the round trip at retarget
// boundaries is exact and monotone.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	negative := n.Sign() < 0
	abs := new(big.Int).Abs(n)

	var mantissa uint32
	exponent := uint(len(abs.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(abs.Uint64())
		mantissa <<= 8 * (3 - exponent)
	} else {
		shifted := new(big.Int).Rsh(abs, 8*(exponent-3))
		mantissa = uint32(shifted.Uint64())
	}

	// If the sign bit of the mantissa is set, shift right one more byte
	// and bump the exponent so the stored value never looks negative.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent)<<24 | mantissa
	if negative {
		compact |= 0x00800000
	}
	return compact
}

// WorkFromBits returns the work value a header's compact bits represent:
// the raw size/mantissa decomposition, not an inverse-of-target
// reciprocal. This is the quantity the retarget arithmetic operates on.
func WorkFromBits(bits uint32) *big.Int {
	return CompactToBig(bits)
}

// BitsFromWork is the canonical monotone inversion of WorkFromBits.
func BitsFromWork(work *big.Int) uint32 {
	return BigToCompact(work)
}

// TargetFromBits interprets bits as a PoW target for the header-hash
// comparison in CheckProofOfWork; target and work share the same compact
// decomposition.
func TargetFromBits(bits uint32) *big.Int {
	return CompactToBig(bits)
}

// CheckProofOfWork reports whether header's hash, interpreted as a big
// number, does not exceed the target its Bits encode.
func CheckProofOfWork(header *wire.BlockHeader) bool {
	hash := header.Hash()
	hashNum := new(big.Int).SetBytes(reverseBytes(hash[:]))
	target := TargetFromBits(header.Bits)
	if target.Sign() <= 0 {
		return false
	}
	return hashNum.Cmp(target) <= 0
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// oneLsh256 is 1 shifted left 256 bits, the numerator of the fork-choice
// work inversion.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// BlockWork returns the fork-choice work a header contributes to its
// chain: 2^256 / (target+1). The raw target decomposition WorkFromBits
// feeds the LWMA arithmetic, but it cannot serve as the cumulative-work
// summand: target values exceed the header's 128-bit accumulator, and
// summing targets would rank easier chains higher. The standard inversion
// fits 128 bits for every target the compact encoding can carry.
func BlockWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return new(big.Int)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(oneLsh256, denom)
}

// AddWork adds the fork-choice work a compact-bits value represents into a
// 128-bit big-endian accumulator (the header's CumulativeWork field).
func AddWork(acc [16]byte, bits uint32) [16]byte {
	accBig := new(big.Int).SetBytes(acc[:])
	accBig.Add(accBig, BlockWork(bits))
	var out [16]byte
	accBig.FillBytes(out[:])
	return out
}

// CumulativeWorkBig decodes a header's 128-bit big-endian CumulativeWork
// field into a big.Int for comparison during fork choice.
func CumulativeWorkBig(acc [16]byte) *big.Int {
	return new(big.Int).SetBytes(acc[:])
}

// LWMANextBits computes the next block's required difficulty using a
// Linear-Weighted Moving Average retarget: recent inter-block times weigh
// more than old ones, so the difficulty tracks hashrate changes quickly.
// headers must be ordered oldest-to-newest and end at the current tip; if
// fewer than params.LWMAWindow+1 headers are available, the network's
// initial difficulty (its PoW limit) is used.
func LWMANextBits(params *chaincfg.Params, headers []*wire.BlockHeader) uint32 {
	window := int(params.LWMAWindow)
	initial := BigToCompact(params.PowLimit)
	if len(headers) < window+1 {
		return initial
	}

	recent := headers[len(headers)-window-1:]

	weightedTime := new(big.Int)
	workSum := new(big.Int)
	sumWeights := int64(0)
	for i := 0; i < window; i++ {
		prevTS := recent[i].Timestamp
		curTS := recent[i+1].Timestamp
		delta := curTS - prevTS
		if delta < 1 {
			delta = 1
		}
		weight := int64(i + 1)
		sumWeights += weight
		weightedTime.Add(weightedTime, new(big.Int).Mul(big.NewInt(weight), big.NewInt(delta)))
		workSum.Add(workSum, WorkFromBits(recent[i+1].Bits))
	}

	avgWork := new(big.Int).Div(workSum, big.NewInt(int64(window)))

	// new_work = avg_work * (weighted_time / sum_weights) / target_block_time:
	// the linearly weighted average inter-block time against the target.
	numerator := new(big.Int).Mul(avgWork, weightedTime)
	denominator := big.NewInt(sumWeights * params.TargetBlockTimeSeconds)
	newWork := new(big.Int).Div(numerator, denominator)

	minWork := big.NewInt(1)
	maxWork := params.PowLimit
	if newWork.Cmp(minWork) < 0 {
		newWork = minWork
	}
	if newWork.Cmp(maxWork) > 0 {
		newWork = maxWork
	}

	return BitsFromWork(newWork)
}

// CheckHeaderTimestamp enforces the header timestamp rule: strictly
// increasing, and not further than MaxTimeAdjustSeconds ahead of the
// network-adjusted current time.
func CheckHeaderTimestamp(header, prev *wire.BlockHeader, networkNow int64, params *chaincfg.Params) error {
	if header.Timestamp <= prev.Timestamp {
		return ruleError(ErrInvalidHeader, "block timestamp is not later than the previous block")
	}
	if header.Timestamp > networkNow+params.MaxTimeAdjustSeconds {
		return ruleError(ErrInvalidHeader, "block timestamp too far in the future")
	}
	return nil
}
