package core

import (
	"fmt"

	"duelpool/internal/event"
)

// SequenceValidator validates source sequences per partition. The wallet
// partition is strict (upstream assigns contiguous sequences to funding
// commands); the arena partition is monotonic with gaps tolerated, since
// round commands may be submitted over HTTP with timestamp-derived
// sequences.
// Not thread-safe — only accessed from the single-threaded core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	gaps            map[string]int64
	outOfOrder      map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		gaps:            make(map[string]int64),
		outOfOrder:      make(map[string]int64),
	}
}

// ValidateSequence checks source sequence ordering for a partition.
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	if partition == event.PartitionArena {
		return sv.validateMonotonic(partition, sourceSequence)
	}
	return sv.validateStrict(partition, sourceSequence, isDuplicate)
}

func (sv *SequenceValidator) validateStrict(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			// Already processed — expected on redelivery.
			return nil
		}
		sv.outOfOrder[partition]++
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.gaps[partition]++
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// validateMonotonic rejects regressions but accepts gaps.
func (sv *SequenceValidator) validateMonotonic(partition string, sourceSequence int64) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		sv.outOfOrder[partition]++
		return fmt.Errorf("stale sequence: partition=%s, expected>=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence > expected {
		sv.gaps[partition]++
		// Gaps are tolerable on this partition.
	}

	sv.expectedNextSeq[partition] = sourceSequence + 1
	return nil
}

// GetExpectedSequence returns next expected sequence for a partition.
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes the expected sequence during recovery.
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns the full sequence state (for snapshots).
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// Gaps returns the gap count for a partition.
func (sv *SequenceValidator) Gaps(partition string) int64 {
	return sv.gaps[partition]
}

// OutOfOrder returns the out-of-order count for a partition.
func (sv *SequenceValidator) OutOfOrder(partition string) int64 {
	return sv.outOfOrder[partition]
}
