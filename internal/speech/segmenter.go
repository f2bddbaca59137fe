package speech

import "strings"

// Segmenter splits text that arrives in pieces, such as a streamed LLM reply,
// into the same units [Split] would produce for the whole text. A sentence
// is released once the text after it proves the boundary; the last one waits
// for [Segmenter.Flush].
//
// A Segmenter is not safe for concurrent use.
type Segmenter struct {
	pending string
	next    int
}

// Feed appends delta and returns the units completed by it, indexed after
// every unit returned before.
func (s *Segmenter) Feed(delta string) []Unit {
	s.pending += delta
	parts := sentences(s.pending)
	keep := len(parts) - 1
	// A boundary followed only by whitespace is not proven yet: the next
	// word may start in lowercase.
	if keep > 0 && strings.TrimSpace(parts[keep]) == "" {
		keep--
	}
	if keep < 1 {
		return nil
	}
	s.pending = strings.Join(parts[keep:], "")
	return s.emit(parts[:keep])
}

// Flush returns the units left in the buffer and empties it.
func (s *Segmenter) Flush() []Unit {
	rest := s.pending
	s.pending = ""
	return s.emit(sentences(rest))
}

func (s *Segmenter) emit(sents []string) []Unit {
	var out []Unit
	for _, sent := range sents {
		for _, piece := range pieces(Preprocess(sent)) {
			out = append(out, Unit{Index: s.next, Text: piece})
			s.next++
		}
	}
	return out
}
