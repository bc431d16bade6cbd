package store

import "sort"

// Record is one chunk's entry in the corpus document.
// Optional fields are nil until the stage that owns them succeeds and
// serialize as JSON null.
type Record struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ASR   *string `json:"asr"`
	Found *string `json:"found"`
	Shift *int    `json:"shift"`
	Diff  *int    `json:"diff"`
}

// NewRecord returns a record holding only segment bounds.
func NewRecord(start, end float64) Record {
	return Record{Start: start, End: end}
}

// Duration returns End - Start in seconds.
func (r Record) Duration() float64 {
	return r.End - r.Start
}

// HasASR reports whether a non-empty transcript is present.
func (r Record) HasASR() bool {
	return r.ASR != nil && *r.ASR != ""
}

// Aligned reports whether the record carries an alignment result.
func (r Record) Aligned() bool {
	return r.Found != nil
}

// Corpus maps chunk id to record. Iteration order is defined by IDs.
type Corpus map[string]Record

// IDs returns the chunk ids in sort order, which for zero-padded names is
// also the order in which the segmenter discovered the spans.
func (c Corpus) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type optional[T any] struct {
	set   bool
	value *T
}

func some[T any](v T) optional[T] {
	return optional[T]{set: true, value: &v}
}

func (o optional[T]) apply(dst **T) {
	if !o.set {
		return
	}
	if o.value == nil {
		*dst = nil
		return
	}
	v := *o.value
	*dst = &v
}

// Update names the fields to overwrite on an existing record. Fields that
// were never set on the Update are left untouched by Merge.
type Update struct {
	asr   optional[string]
	found optional[string]
	shift optional[int]
	diff  optional[int]
}

func (u Update) WithASR(text string) Update {
	u.asr = some(text)
	return u
}

func (u Update) WithFound(text string) Update {
	u.found = some(text)
	return u
}

func (u Update) WithShift(shift int) Update {
	u.shift = some(shift)
	return u
}

// WithoutShift resets shift to null.
func (u Update) WithoutShift() Update {
	u.shift = optional[int]{set: true}
	return u
}

func (u Update) WithDiff(diff int) Update {
	u.diff = some(diff)
	return u
}

// Empty reports whether the update names no field.
func (u Update) Empty() bool {
	return !u.asr.set && !u.found.set && !u.shift.set && !u.diff.set
}

// Apply overwrites the named fields of r.
func (u Update) Apply(r *Record) {
	u.asr.apply(&r.ASR)
	u.found.apply(&r.Found)
	u.shift.apply(&r.Shift)
	u.diff.apply(&r.Diff)
}
