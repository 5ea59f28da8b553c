package pieuvre

// ident.go — locating identifier occurrences inside sentences.

type identToken struct {
	Name       string
	Start, End int // byte offsets within the sentence text
}

// identTokens returns the identifiers of text in left-to-right order,
// skipping comments and string literals. Qualified names such as Nat.add
// form a single token.
func identTokens(text string) []identToken {
	var tokens []identToken
	depth := 0
	for i := 0; i < len(text); {
		switch {
		case text[i] == '(' && i+1 < len(text) && text[i+1] == '*':
			depth++
			i += 2
		case text[i] == '*' && i+1 < len(text) && text[i+1] == ')':
			if depth > 0 {
				depth--
			}
			i += 2
		case depth > 0:
			i++
		case text[i] == '"':
			i++
			for i < len(text) && text[i] != '"' {
				i++
			}
			i++
		case isIdentStart(text[i]):
			start := i
			for i < len(text) && (isIdentPart(text[i]) || text[i] == '.' && i+1 < len(text) && isIdentStart(text[i+1])) {
				i++
			}
			tokens = append(tokens, identToken{Name: text[start:i], Start: start, End: i})
		case isDigit(text[i]):
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
		default:
			i++
		}
	}
	return tokens
}

// occurrenceAt returns the identifier covering offset (relative to text)
// and how many earlier occurrences of the same name precede it.
func occurrenceAt(text string, offset int) (identToken, int, bool) {
	seen := make(map[string]int)
	for _, tok := range identTokens(text) {
		if offset >= tok.Start && offset <= tok.End {
			return tok, seen[tok.Name], true
		}
		seen[tok.Name]++
	}
	return identToken{}, 0, false
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '\''
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
