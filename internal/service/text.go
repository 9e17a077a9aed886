package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lexatlas/lexrag/internal/domain"
)

// wordTokenPattern matches word tokens: letters, digits and underscore,
// Unicode-aware so accented Spanish words count as single tokens.
var wordTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// namePattern matches runs of two or more capitalized words, covering both
// title case ("Juan Pérez") and the all-caps style of court transcripts
// ("COORDINADORA COMERCIAL").
var namePattern = regexp.MustCompile(`\p{Lu}\p{L}*(?:\s+\p{Lu}\p{L}*)+`)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),                        // DD/MM/YYYY
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),                        // YYYY-MM-DD
	regexp.MustCompile(`\d{1,2}\s+de\s+[a-záéíóúñ]+\s+de\s+\d{4}`),     // DD de mes de YYYY
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d{1,3}(?:,\d{3})*(?:\.\d{2})?`),                     // $1,000,000.00
	regexp.MustCompile(`\$\d{1,3}(?:\.\d{3})*(?:,\d{2})?`),                     // $1.000.000,00
	regexp.MustCompile(`\d{1,3}(?:,\d{3})*(?:\.\d{2})?\s*(?:pesos|dólares|euros)`),
	regexp.MustCompile(`\d+\s*(?:mil|millones|billones)\s*(?:pesos|dólares|euros)`),
}

var (
	multiSpacePattern = regexp.MustCompile(` +`)
	multiBlankPattern = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// defaultLegalTerms is the closed Spanish legal vocabulary recognized by
// entity extraction. Matching is case-insensitive substring containment.
var defaultLegalTerms = []string{
	"demandante", "demandado", "embargo", "medida cautelar",
	"sentencia", "recurso", "apelación", "fundamento",
	"hechos", "pruebas", "testigo", "abogado", "juez",
	"tribunal", "juzgado", "fiscal", "procurador", "notario",
	"acta", "escritura", "contrato", "testamento", "herencia",
	"divorcio", "custodia", "pensión", "alimentos", "hipoteca",
	"desahucio", "arrendamiento", "compraventa", "donación",
}

var spanishMonths = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4,
	"mayo": 5, "junio": 6, "julio": 7, "agosto": 8,
	"septiembre": 9, "setiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
}

var (
	slashDatePattern   = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	isoDatePattern     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	spanishDatePattern = regexp.MustCompile(`^(\d{1,2})\s+de\s+([a-záéíóúñ]+)\s+de\s+(\d{4})$`)
)

// TextNormalizer provides the shared text operations of the pipeline:
// search normalization, tokenization, chunking cleanup and legal entity
// extraction. Indexing and querying must use the same instance semantics
// so normalized values compare equal across both paths.
type TextNormalizer struct {
	legalTerms []string
}

// NewTextNormalizer creates a TextNormalizer with the default legal
// vocabulary
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{legalTerms: defaultLegalTerms}
}

// Normalize lowercases, strips diacritics, replaces non-word characters
// with spaces and collapses whitespace. Idempotent: applying it twice
// yields the same string.
func (n *TextNormalizer) Normalize(text string) string {
	lower := strings.ToLower(text)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripMarks, lower)
	if err != nil {
		plain = lower
	}

	var b strings.Builder
	b.Grow(len(plain))
	for _, r := range plain {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize returns the lowercased word tokens of the text
func (n *TextNormalizer) Tokenize(text string) []string {
	return wordTokenPattern.FindAllString(strings.ToLower(text), -1)
}

// CountTokens returns the number of word tokens in the text
func (n *TextNormalizer) CountTokens(text string) int {
	return len(wordTokenPattern.FindAllStringIndex(text, -1))
}

// CleanForChunking removes control characters, normalizes line endings,
// collapses space runs and squeezes three or more newlines down to a
// single blank line. Paragraph boundaries survive; layout noise does not.
func (n *TextNormalizer) CleanForChunking(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.ReplaceAll(b.String(), "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = multiBlankPattern.ReplaceAllString(cleaned, "\n\n")

	return strings.TrimSpace(cleaned)
}

// ExtractEntities pulls names, dates, monetary amounts and legal terms
// out of the text. Each list keeps first-seen order; values repeated in
// the text appear repeated here. The extraction is heuristic: it feeds
// advisory correlation, never hard filtering.
func (n *TextNormalizer) ExtractEntities(text string) domain.Entities {
	var entities domain.Entities

	for _, m := range namePattern.FindAllString(text, -1) {
		name := strings.TrimSpace(m)
		if len(name) > 2 && strings.Contains(name, " ") {
			entities.Names = append(entities.Names, name)
		}
	}

	for _, p := range datePatterns {
		entities.Dates = append(entities.Dates, p.FindAllString(text, -1)...)
	}

	for _, p := range amountPatterns {
		entities.Amounts = append(entities.Amounts, p.FindAllString(text, -1)...)
	}

	lower := strings.ToLower(text)
	for _, term := range n.legalTerms {
		if strings.Contains(lower, term) {
			entities.LegalTerms = append(entities.LegalTerms, term)
		}
	}

	return entities
}

// CanonicalDate rewrites the three recognized date shapes to ISO
// 2006-01-02. Unparseable input is returned unchanged so downstream
// normalization still has a value to work with.
func (n *TextNormalizer) CanonicalDate(value string) string {
	v := strings.TrimSpace(strings.ToLower(value))

	if m := slashDatePattern.FindStringSubmatch(v); m != nil {
		if iso, ok := formatDate(m[3], m[2], m[1]); ok {
			return iso
		}
	}
	if m := isoDatePattern.FindStringSubmatch(v); m != nil {
		if iso, ok := formatDate(m[1], m[2], m[3]); ok {
			return iso
		}
	}
	if m := spanishDatePattern.FindStringSubmatch(v); m != nil {
		if month, ok := spanishMonths[m[2]]; ok {
			if iso, ok := formatDate(m[3], strconv.Itoa(month), m[1]); ok {
				return iso
			}
		}
	}

	return value
}

func formatDate(year, month, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if y < 1 || m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}
