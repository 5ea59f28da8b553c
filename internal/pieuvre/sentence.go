package pieuvre

// sentence.go — splitting proof source into prover sentences.

// Segment splits text into the ordered list of complete sentences.
//
// A '.' ends a sentence when it is outside every (* ... *) comment and is
// followed by whitespace or the end of input, so qualified names such as
// Nat.add stay inside one sentence. Comments nest; an unmatched "*)" is
// ignored. Trailing content that is not terminated is not returned.
func Segment(text string) []Sentence {
	var sentences []Sentence
	depth := 0
	start := skipSpace(text, 0)
	for i := start; i < len(text); i++ {
		switch {
		case text[i] == '(' && i+1 < len(text) && text[i+1] == '*':
			depth++
			i++
		case text[i] == '*' && i+1 < len(text) && text[i+1] == ')':
			if depth > 0 {
				depth--
			}
			i++
		case text[i] == '.' && depth == 0 && (i+1 == len(text) || isSpace(text[i+1])):
			sentences = append(sentences, Sentence{Text: text[start : i+1], Start: start, End: i + 1})
			start = skipSpace(text, i+1)
			i = start - 1
		}
	}
	return sentences
}

// commonPrefix returns the number of leading sentences whose text is
// identical in a and b. Ranges are ignored.
func commonPrefix(a []Entry, b []Sentence) int {
	n := 0
	for n < len(a) && n < len(b) && a[n].Sentence.Text == b[n].Text {
		n++
	}
	return n
}

// sentencesBefore returns how many sentences end at or before limit.
// A negative limit selects all of them.
func sentencesBefore(sentences []Sentence, limit int) int {
	if limit < 0 {
		return len(sentences)
	}
	n := 0
	for n < len(sentences) && sentences[n].End <= limit {
		n++
	}
	return n
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
