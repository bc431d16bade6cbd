// Package report summarizes a corpus document: how many chunks were
// transcribed and aligned, how long they are, how far transcripts are from
// the source, and which transcripts repeat.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

// Report is the corpus summary.
type Report struct {
	Chunks      int `json:"chunks"`
	Transcribed int `json:"transcribed"`
	Aligned     int `json:"aligned"`
	// Unresolved counts transcribed chunks without a match.
	Unresolved int `json:"unresolved"`
	// NoShift counts aligned chunks whose offset could not be located.
	NoShift int `json:"no_shift"`

	TotalDuration float64 `json:"total_duration"`
	MeanDuration  float64 `json:"mean_duration"`
	// AlignedDuration is the audio length usable for training.
	AlignedDuration float64 `json:"aligned_duration"`

	MeanDiff float64 `json:"mean_diff"`
	MaxDiff  int     `json:"max_diff"`

	Duplicates []DuplicateGroup `json:"duplicates"`
}

// DuplicateGroup is a set of chunks with near-identical transcripts. Such
// chunks usually come from a passage repeated in the source, where the
// aligner cannot tell occurrences apart.
type DuplicateGroup struct {
	IDs  []string `json:"ids"`
	Text string   `json:"text"`
}

// Options tunes Build.
type Options struct {
	// Threshold is the maximum simhash Hamming distance inside a group.
	// Negative disables duplicate detection.
	Threshold int
}

// Build computes the report. Chunks are visited in id order, so output is
// deterministic.
func Build(corpus store.Corpus, opts Options) Report {
	r := Report{Duplicates: []DuplicateGroup{}}
	var diffSum int

	type seen struct {
		hash  uint64
		group int
	}
	var reps []seen

	for _, id := range corpus.IDs() {
		rec := corpus[id]
		r.Chunks++
		r.TotalDuration += rec.Duration()

		if !rec.HasASR() {
			continue
		}
		r.Transcribed++

		if rec.Aligned() {
			r.Aligned++
			r.AlignedDuration += rec.Duration()
			if rec.Diff != nil {
				diffSum += *rec.Diff
				r.MaxDiff = max(r.MaxDiff, *rec.Diff)
			}
			if rec.Shift == nil {
				r.NoShift++
			}
		} else {
			r.Unresolved++
		}

		if opts.Threshold < 0 {
			continue
		}
		h := Fingerprint(*rec.ASR)
		matched := false
		for _, s := range reps {
			if Distance(h, s.hash) <= opts.Threshold {
				r.Duplicates[s.group].IDs = append(r.Duplicates[s.group].IDs, id)
				matched = true
				break
			}
		}
		if !matched {
			reps = append(reps, seen{hash: h, group: len(r.Duplicates)})
			r.Duplicates = append(r.Duplicates, DuplicateGroup{IDs: []string{id}, Text: *rec.ASR})
		}
	}

	groups := r.Duplicates[:0]
	for _, g := range r.Duplicates {
		if len(g.IDs) > 1 {
			groups = append(groups, g)
		}
	}
	r.Duplicates = groups

	if r.Chunks > 0 {
		r.MeanDuration = r.TotalDuration / float64(r.Chunks)
	}
	if r.Aligned > 0 {
		r.MeanDiff = float64(diffSum) / float64(r.Aligned)
	}
	return r
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// WriteText writes r as an aligned two-column table followed by the
// duplicate groups.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		k string
		v any
	}{
		{"chunks", r.Chunks},
		{"transcribed", r.Transcribed},
		{"aligned", r.Aligned},
		{"unresolved", r.Unresolved},
		{"no shift", r.NoShift},
		{"total duration", fmt.Sprintf("%.1fs", r.TotalDuration)},
		{"aligned duration", fmt.Sprintf("%.1fs", r.AlignedDuration)},
		{"mean duration", fmt.Sprintf("%.2fs", r.MeanDuration)},
		{"mean diff", fmt.Sprintf("%.2f", r.MeanDiff)},
		{"max diff", r.MaxDiff},
		{"duplicate groups", len(r.Duplicates)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", row.k, row.v)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, g := range r.Duplicates {
		if _, err := fmt.Fprintf(w, "\n%q\n", g.Text); err != nil {
			return err
		}
		for _, id := range g.IDs {
			if _, err := fmt.Fprintf(w, "  %s\n", id); err != nil {
				return err
			}
		}
	}
	return nil
}
