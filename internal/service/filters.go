package service

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexatlas/lexrag/internal/domain"
)

// FieldPatterns declares the candidate regexes for one query field.
// Patterns are tried in order and the first one that matches wins the
// field; a pattern's first capture group is the extracted value, or the
// whole match when it has no groups.
type FieldPatterns struct {
	Field    string   `yaml:"field"`
	Key      string   `yaml:"key"`
	Patterns []string `yaml:"patterns"`
}

// DefaultFilterPatterns returns the built-in pattern table for Spanish
// legal queries. The table is data, not code: deployments can override
// it with LoadFilterPatterns.
func DefaultFilterPatterns() []FieldPatterns {
	return []FieldPatterns{
		{
			Field: "demandante",
			Key:   domain.FilterKeyDemandante,
			Patterns: []string{
				`(?i)(?:demandante|actor|solicitante)\s+(?:es\s+)?([A-ZÁÉÍÓÚÑ\s]+)`,
				`(?i)(?:el\s+)?demandante\s+([A-ZÁÉÍÓÚÑ\s]+)`,
				`(?i)([A-ZÁÉÍÓÚÑ\s]+)\s+(?:es\s+el\s+)?demandante`,
			},
		},
		{
			Field: "demandado",
			Key:   domain.FilterKeyDemandado,
			Patterns: []string{
				`(?i)(?:demandado|demandada|entidad)\s+(?:es\s+)?([A-ZÁÉÍÓÚÑ\s]+)`,
				`(?i)(?:el\s+)?demandado\s+([A-ZÁÉÍÓÚÑ\s]+)`,
				`(?i)([A-ZÁÉÍÓÚÑ\s]+)\s+(?:es\s+el\s+)?demandado`,
			},
		},
		{
			Field: "cuantia",
			Key:   domain.FilterKeyCuantia,
			Patterns: []string{
				`(?i)(?:cuantía|monto|valor)\s+(?:es\s+)?(\$?[\d,\.]+)`,
				`(?i)(\$?[\d,\.]+)\s+(?:es\s+la\s+)?cuantía`,
				`(?i)por\s+(\$?[\d,\.]+)`,
			},
		},
		{
			Field: "fecha",
			Key:   domain.FilterKeyFecha,
			Patterns: []string{
				`(?i)(?:fecha|día)\s+(?:es\s+)?(\d{1,2}[/-]\d{1,2}[/-]\d{4})`,
				`(?i)(\d{1,2}[/-]\d{1,2}[/-]\d{4})\s+(?:es\s+la\s+)?fecha`,
				`(?i)el\s+(\d{1,2}\s+de\s+[a-záéíóúñ]+\s+de\s+\d{4})`,
			},
		},
		{
			Field: "tipo_medida",
			Key:   domain.FilterKeyTipoMedida,
			Patterns: []string{
				`(?i)(?:tipo\s+de\s+)?medida\s+(?:es\s+)?([a-záéíóúñ\s]+)`,
				`(?i)([a-záéíóúñ\s]+)\s+(?:es\s+el\s+)?tipo\s+de\s+medida`,
				`(?i)(embargo|medida\s+cautelar|secuestro|prohibición)`,
			},
		},
		{
			Field: "expediente",
			Key:   domain.FilterKeyDocumentID,
			Patterns: []string{
				`\b[A-Z]{2,4}\d{6,10}\b`,
				`(?i)exp\.?\s*(\d{4}/\d{4})`,
				`(?i)causa\s*(\d{4}/\d{4})`,
			},
		},
	}
}

// LoadFilterPatterns reads a pattern table from a YAML file
func LoadFilterPatterns(path string) ([]FieldPatterns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern table: %w", err)
	}

	var table []FieldPatterns
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pattern table: %w", err)
	}

	return table, nil
}

// measureVocabulary maps normalized measure mentions to their canonical
// indexed labels. Lookup keys are pre-normalized; order decides ties.
var measureVocabulary = []struct {
	mention string
	label   string
}{
	{"embargo", "Embargo"},
	{"medida cautelar", "Medida Cautelar"},
	{"secuestro", "Secuestro"},
	{"prohibicion", "Prohibición"},
	{"suspension", "Suspensión"},
}

// canonicalMeasure resolves a normalized measure mention to its canonical
// indexed label. Unmapped terms are dropped, never stored as free text.
func canonicalMeasure(normalized string) (string, bool) {
	for _, m := range measureVocabulary {
		if strings.Contains(normalized, m.mention) {
			return m.label, true
		}
	}
	return "", false
}

type compiledField struct {
	field    string
	key      string
	patterns []*regexp.Regexp
}

func (f compiledField) firstMatch(text string) string {
	for _, re := range f.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 {
			value = m[1]
		}
		return strings.TrimSpace(value)
	}
	return ""
}

// FilterExtractor turns a free-form query into a FilterSet using the
// declarative pattern table, with entity extraction as fallback for
// fields no pattern caught. Extraction never fails: an unparseable query
// just yields an empty set.
type FilterExtractor struct {
	fields     []compiledField
	normalizer *TextNormalizer
}

// NewFilterExtractor compiles the pattern table, failing fast on an
// empty table or an invalid pattern
func NewFilterExtractor(table []FieldPatterns, normalizer *TextNormalizer) (*FilterExtractor, error) {
	if len(table) == 0 {
		return nil, domain.NewConfigurationError("filter_patterns", "pattern table is empty")
	}
	if normalizer == nil {
		normalizer = NewTextNormalizer()
	}

	fields := make([]compiledField, 0, len(table))
	for _, fp := range table {
		if fp.Field == "" || fp.Key == "" {
			return nil, domain.NewConfigurationError("filter_patterns",
				fmt.Sprintf("entry %q must declare field and key", fp.Field))
		}
		cf := compiledField{field: fp.Field, key: fp.Key}
		for _, p := range fp.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, domain.NewConfigurationError("filter_patterns",
					fmt.Sprintf("field %s pattern %q: %v", fp.Field, p, err))
			}
			cf.patterns = append(cf.patterns, re)
		}
		if len(cf.patterns) == 0 {
			return nil, domain.NewConfigurationError("filter_patterns",
				fmt.Sprintf("field %s has no patterns", fp.Field))
		}
		fields = append(fields, cf)
	}

	return &FilterExtractor{fields: fields, normalizer: normalizer}, nil
}

// ExtractFilters extracts structured filters from the query. Values
// destined for *_normalized keys pass through the same normalization
// used at indexing time, so equality against indexed metadata can hold.
func (e *FilterExtractor) ExtractFilters(query string) domain.FilterSet {
	filters := domain.FilterSet{}
	entities := e.normalizer.ExtractEntities(query)

	for _, f := range e.fields {
		value := f.firstMatch(query)
		if value == "" {
			continue
		}
		e.applyValue(filters, f.field, f.key, value)
	}

	// Entity fallback, only for fields the patterns left unset.
	if filters[domain.FilterKeyDemandante] == "" && len(entities.Names) > 0 {
		if v := e.normalizer.Normalize(entities.Names[0]); v != "" {
			filters[domain.FilterKeyDemandante] = v
		}
	}
	if filters[domain.FilterKeyCuantia] == "" && len(entities.Amounts) > 0 {
		if v := digitsOnly(entities.Amounts[0]); v != "" {
			filters[domain.FilterKeyCuantia] = v
		}
	}
	if filters[domain.FilterKeyFecha] == "" && len(entities.Dates) > 0 {
		if v := e.normalizer.Normalize(e.normalizer.CanonicalDate(entities.Dates[0])); v != "" {
			filters[domain.FilterKeyFecha] = v
		}
	}

	return filters
}

func (e *FilterExtractor) applyValue(filters domain.FilterSet, field, key, value string) {
	switch field {
	case "cuantia":
		if digits := digitsOnly(value); digits != "" {
			filters[key] = digits
		}
	case "fecha":
		if v := e.normalizer.Normalize(e.normalizer.CanonicalDate(value)); v != "" {
			filters[key] = v
		}
	case "tipo_medida":
		if label, ok := canonicalMeasure(e.normalizer.Normalize(value)); ok {
			filters[key] = label
		}
	default:
		if domain.IsNormalizedFilterKey(key) {
			if v := e.normalizer.Normalize(value); v != "" {
				filters[key] = v
			}
			return
		}
		filters[key] = value
	}
}

// ValidateFilters strips empty values and re-normalizes *_normalized
// keys. Normalization is idempotent, so validating already clean
// filters is a no-op.
func (e *FilterExtractor) ValidateFilters(filters domain.FilterSet) domain.FilterSet {
	validated := domain.FilterSet{}
	for key, value := range filters {
		v := strings.TrimSpace(value)
		if v == "" {
			continue
		}
		if domain.IsNormalizedFilterKey(key) {
			v = e.normalizer.Normalize(v)
			if v == "" {
				continue
			}
		}
		validated[key] = v
	}
	return validated
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
