// Package merge implements the segment merger (C5) and its pluggable
// merge policy (spec §4.5). The policy is grounded on the teacher's
// index/merge.go TieredMergePolicy, itself an adaptation of Lucene's
// TieredMergePolicy; the merge algorithm (Merge) is new, built to the
// spec's last-write-wins k-way merge over segment.Reader rather than the
// teacher's unimplemented MergeSegments stub.
package merge

import (
	"fmt"
	"log"
	"math"

	"go4.org/sort"

	"github.com/fpindex/fpindex/segment"
)

// Candidate is a segment eligible for merging, along with the
// approximate byte size the policy uses for bucketing (spec §4.5
// "segments are grouped by block_count bucket").
type Candidate struct {
	Info segment.Info
	Size int
}

// CandidateSize estimates a segment's size in bytes from its block count
// and block size, the unit the merge policy buckets segments by.
func CandidateSize(info segment.Info) int {
	blockSize := info.BlockSize
	if blockSize == 0 {
		blockSize = 1024
	}
	return info.BlockCount * blockSize
}

// Plan is one proposed merge: a set of segments to combine into one.
type Plan struct {
	Candidates []Candidate
	Score      float64
}

// Policy determines which segments should be merged together.
type Policy interface {
	FindMerges(candidates []Candidate, maxSize int) []Plan
}

// TieredMergePolicy is a direct adaptation of the teacher's
// TieredMergePolicy (itself ported from Lucene), generalized from
// *Segment to Candidate.
type TieredMergePolicy struct {
	// FloorSegmentSize is the smallest segment size considered; smaller
	// segments are treated as this size for merge selection, so a long
	// tail of tiny flushed segments doesn't stall merging.
	FloorSegmentSize int

	// MaxMergedSegmentSize bounds the size of a segment produced by one
	// merge.
	MaxMergedSegmentSize int

	// MaxMergeAtOnce bounds how many segments one merge combines.
	MaxMergeAtOnce int

	// MaxSegmentsPerTier bounds how many segments are allowed per size
	// tier before a merge is forced.
	MaxSegmentsPerTier int

	Verbose bool
}

// NewTieredMergePolicy returns a TieredMergePolicy with the teacher's
// defaults: 1MB floor, 2GB max merged size, merge up to 10 segments at a
// time, 10 segments allowed per tier.
func NewTieredMergePolicy() *TieredMergePolicy {
	return &TieredMergePolicy{
		FloorSegmentSize:     1024 * 1024,
		MaxMergedSegmentSize: 1024 * 1024 * 1024 * 2,
		MaxMergeAtOnce:       10,
		MaxSegmentsPerTier:   10,
	}
}

func (mp *TieredMergePolicy) floorSize(size int) int {
	if size < mp.FloorSegmentSize {
		return mp.FloorSegmentSize
	}
	return size
}

func (mp *TieredMergePolicy) findBestMerge(candidates []Candidate, maxSize int) *Plan {
	var best *Plan
	for i := 0; i <= len(candidates)-mp.MaxMergeAtOnce; i++ {
		var plan Plan
		var mergeSize, mergeSizeFloored int
		var hitTooLarge bool
		for j := i; j < len(candidates); j++ {
			c := candidates[j]
			if c.Size+mergeSize > maxSize {
				hitTooLarge = true
				continue
			}
			mergeSize += c.Size
			mergeSizeFloored += mp.floorSize(c.Size)
			plan.Candidates = append(plan.Candidates, c)
			if len(plan.Candidates) >= mp.MaxMergeAtOnce {
				break
			}
		}
		if len(plan.Candidates) == 0 {
			continue
		}

		var skew float64
		if hitTooLarge {
			skew = 1.0 / float64(mp.MaxMergeAtOnce)
		} else {
			skew = float64(mp.floorSize(plan.Candidates[0].Size)) / float64(mergeSizeFloored)
		}
		plan.Score = skew * math.Pow(float64(mergeSize), 0.05)

		if mp.Verbose {
			log.Printf("merge: candidate plan segments=%v score=%v skew=%v", planIDs(plan), plan.Score, skew)
		}

		if best == nil || plan.Score < best.Score {
			p := plan
			best = &p
		}
	}
	return best
}

func planIDs(p Plan) []uint64 {
	ids := make([]uint64, len(p.Candidates))
	for i, c := range p.Candidates {
		ids[i] = uint64(c.Info.ID)
	}
	return ids
}

// FindMerges selects zero or more merge plans from the given segments,
// deterministic given the input list (spec §4.5). maxSize of 0 uses
// MaxMergedSegmentSize.
func (mp *TieredMergePolicy) FindMerges(origCandidates []Candidate, maxSize int) []Plan {
	if maxSize == 0 {
		maxSize = mp.MaxMergedSegmentSize
	}

	candidates := make([]Candidate, 0, len(origCandidates))
	for _, c := range origCandidates {
		if mp.Verbose {
			var extra string
			if c.Size > maxSize/2 {
				extra = " [skip: too large]"
			} else if c.Size < mp.FloorSegmentSize {
				extra = " [floored]"
			}
			log.Printf("merge: candidate seg=%d size=%d%s", uint64(c.Info.ID), c.Size, extra)
		}
		if c.Size <= maxSize/2 {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Size >= candidates[j].Size })

	var allowedSegmentCount, remainingSize int
	for _, c := range candidates {
		remainingSize += c.Size
	}
	levelSize := mp.floorSize(candidates[len(candidates)-1].Size)
	if levelSize < 1 {
		levelSize = 1
	}
	for {
		levelSegmentCount := (remainingSize + levelSize - 1) / levelSize
		if levelSegmentCount < mp.MaxSegmentsPerTier {
			allowedSegmentCount += levelSegmentCount
			break
		}
		allowedSegmentCount += mp.MaxSegmentsPerTier
		remainingSize -= mp.MaxSegmentsPerTier * levelSize
		levelSize *= mp.MaxMergeAtOnce
	}

	var plans []Plan
	for len(candidates) > allowedSegmentCount {
		plan := mp.findBestMerge(candidates, maxSize)
		if plan == nil {
			break
		}
		if mp.Verbose {
			log.Printf("merge: selected plan segments=%v score=%v", fmt.Sprint(planIDs(*plan)), plan.Score)
		}
		plans = append(plans, *plan)

		remove := make(map[segment.ID]bool, len(plan.Candidates))
		for _, c := range plan.Candidates {
			remove[c.Info.ID] = true
		}
		i := 0
		for _, c := range candidates {
			if !remove[c.Info.ID] {
				candidates[i] = c
				i++
			}
		}
		candidates = candidates[:i]
	}

	return plans
}
