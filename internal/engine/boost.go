// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"math"
	"sort"
	"time"

	"github.com/muninnlabs/muninn/internal/record"
)

// Boost adjustment bounds. The recency blend keeps the boosted score inside
// [0,1] on its own; the access and importance terms are additive and capped,
// so for any record the boosted score stays within
// [raw − importanceCap, raw + accessBonusCap + importanceCap] of the
// recency-blended value.
const (
	// accessBonusCap bounds the log-scaled access-count bonus.
	accessBonusCap = 0.15
	// referenceAccessCount is the count at which the access bonus saturates.
	referenceAccessCount = 20
	// importanceCap bounds the importance adjustment in either direction.
	importanceCap = 0.1
	// neutralImportance is the pivot: records at this importance get no
	// adjustment, below it a penalty, above it a bonus.
	neutralImportance = 0.5
)

// scoredRecord pairs an index result with its parsed record for boosting.
type scoredRecord struct {
	rec   *record.Record
	score float64
}

// boostScore blends the raw search score with recency and adds bounded
// access and importance adjustments:
//
//	score' = raw·(1−w) + decay·w + accessBonus + importanceAdj
//
// where decay = 0.5^(ageDays/halfLife).
func (e *Engine) boostScore(raw float64, rec *record.Record, now time.Time) float64 {
	w := e.cfg.RecencyWeight
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}

	ageDays := now.Sub(rec.Updated).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Pow(0.5, ageDays/e.cfg.RecencyHalfLifeDays)

	boosted := raw*(1-w) + decay*w
	boosted += accessBonus(rec.AccessCount)
	boosted += importanceAdjustment(rec.Importance)
	return boosted
}

// accessBonus returns a log-scaled bonus in [0, accessBonusCap].
func accessBonus(count int) float64 {
	if count <= 0 {
		return 0
	}
	scaled := math.Log(float64(count)+1) / math.Log(referenceAccessCount+1)
	if scaled > 1 {
		scaled = 1
	}
	return scaled * accessBonusCap
}

// importanceAdjustment returns a linear adjustment in
// [-importanceCap, +importanceCap] centered at neutralImportance. Records
// without an importance assessment get no adjustment.
func importanceAdjustment(imp *record.Importance) float64 {
	if imp == nil {
		return 0
	}
	// Importance scores live in [0,1]; the furthest distance from neutral
	// is 0.5, which maps to the full cap.
	adj := (imp.Score - neutralImportance) / 0.5 * importanceCap
	if adj > importanceCap {
		adj = importanceCap
	} else if adj < -importanceCap {
		adj = -importanceCap
	}
	return adj
}

// boostAndSort applies boosting to every result and re-sorts descending.
func (e *Engine) boostAndSort(results []scoredRecord, now time.Time) []scoredRecord {
	for i := range results {
		results[i].score = e.boostScore(results[i].score, results[i].rec, now)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	return results
}
