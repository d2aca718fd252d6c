// Package dataset defines the decoded evaluation batches produced by the
// external dialog model, the sources that yield them, and the vocabulary and
// truncation rules applied before scoring.
package dataset

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

// Example is one evaluation unit: the beam of decoded candidates for a
// dialog context and the reference responses for it.
//
// Beam rows are candidate token ids; BeamLengths[j] is the number of valid
// steps of row j. References rows are padded reference token ids of which
// the first RefCount are valid. Text fields are alternatives to the id
// fields, resolved through a Vocabulary.
type Example struct {
	ID             string     `json:"id,omitempty"`
	Beam           [][]int    `json:"beam,omitempty"`
	BeamLengths    []int      `json:"beam_lengths,omitempty"`
	References     [][]int    `json:"references,omitempty"`
	RefCount       *int       `json:"ref_count,omitempty"`
	BeamText       [][]string `json:"beam_text,omitempty"`
	ReferencesText [][]string `json:"references_text,omitempty"`
}

// Batch is one decoded evaluation batch. Final marks the end of an
// evaluation pass; Loss is the batch's mean cross-entropy when the producer
// computed it.
type Batch struct {
	RunID    string    `json:"run_id,omitempty"`
	Epoch    int       `json:"epoch"`
	Index    int       `json:"index"`
	Loss     *float64  `json:"loss,omitempty"`
	Examples []Example `json:"examples,omitempty"`
	Final    bool      `json:"final,omitempty"`
}

// Empty reports whether the batch carries neither examples nor a loss.
func (b *Batch) Empty() bool {
	return len(b.Examples) == 0 && b.Loss == nil
}

// ValidReferences returns the reference rows selected by RefCount.
func (e *Example) ValidReferences() [][]int {
	if e.RefCount == nil {
		return e.References
	}
	return e.References[:*e.RefCount]
}

// ValidLength returns the valid length of beam row j.
func (e *Example) ValidLength(j int) int {
	if len(e.BeamLengths) == 0 {
		return len(e.Beam[j])
	}
	return e.BeamLengths[j]
}

// Validate checks the example's shape. It does not reject empty beams or
// reference sets; those are handled by the evaluator.
func (e *Example) Validate() error {
	if len(e.BeamLengths) > 0 && len(e.BeamLengths) != len(e.Beam) {
		return apperrors.Invalidf("beam has %d rows but %d lengths", len(e.Beam), len(e.BeamLengths))
	}
	for j, l := range e.BeamLengths {
		if l < 0 {
			return apperrors.Invalidf("beam row %d has negative length %d", j, l)
		}
		if l > len(e.Beam[j]) {
			return apperrors.Invalidf("beam row %d length %d exceeds its %d steps", j, l, len(e.Beam[j]))
		}
	}
	if e.RefCount != nil {
		if *e.RefCount < 0 {
			return apperrors.Invalidf("negative reference count %d", *e.RefCount)
		}
		if *e.RefCount > len(e.References) {
			return apperrors.Invalidf("reference count %d exceeds the %d references provided", *e.RefCount, len(e.References))
		}
	}
	return nil
}

// Resolve maps the text beams and references of every example to ids.
func (b *Batch) Resolve(vocab *Vocabulary) {
	for i := range b.Examples {
		b.Examples[i].Resolve(vocab)
	}
}

// Resolve maps text beams and references to ids through vocab, sharing one
// encoder across the example so unknown tokens match only themselves. Id
// fields that are already set are left untouched.
func (e *Example) Resolve(vocab *Vocabulary) {
	if len(e.BeamText) == 0 && len(e.ReferencesText) == 0 {
		return
	}
	encode := vocab.Encoder()
	if len(e.Beam) == 0 {
		e.Beam = encodeRows(e.BeamText, encode)
	}
	if len(e.References) == 0 {
		e.References = encodeRows(e.ReferencesText, encode)
	}
}

func encodeRows(rows [][]string, encode func(string) int) [][]int {
	out := make([][]int, len(rows))
	for i, row := range rows {
		ids := make([]int, len(row))
		for j, tok := range row {
			ids[j] = encode(tok)
		}
		out[i] = ids
	}
	return out
}
