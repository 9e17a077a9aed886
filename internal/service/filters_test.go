package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexatlas/lexrag/internal/domain"
)

func newTestExtractor(t *testing.T) *FilterExtractor {
	t.Helper()
	extractor, err := NewFilterExtractor(DefaultFilterPatterns(), NewTextNormalizer())
	require.NoError(t, err)
	return extractor
}

func TestNewFilterExtractor_InvalidTable(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		_, err := NewFilterExtractor(nil, nil)
		require.Error(t, err)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "filter_patterns", cfgErr.Field)
	})

	t.Run("entry without key", func(t *testing.T) {
		table := []FieldPatterns{{Field: "demandante", Patterns: []string{`x`}}}
		_, err := NewFilterExtractor(table, nil)
		assert.Error(t, err)
	})

	t.Run("entry without patterns", func(t *testing.T) {
		table := []FieldPatterns{{Field: "demandante", Key: domain.FilterKeyDemandante}}
		_, err := NewFilterExtractor(table, nil)
		assert.Error(t, err)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		table := []FieldPatterns{{Field: "demandante", Key: domain.FilterKeyDemandante, Patterns: []string{`([`}}}
		_, err := NewFilterExtractor(table, nil)
		assert.Error(t, err)
	})
}

func TestFilterExtractor_ExtractFilters_PatternMatches(t *testing.T) {
	extractor := newTestExtractor(t)

	t.Run("demandante is normalized", func(t *testing.T) {
		filters := extractor.ExtractFilters("El demandante es Juan Pérez, según consta")
		assert.Equal(t, "juan perez", filters[domain.FilterKeyDemandante])
	})

	t.Run("cuantia keeps digits only", func(t *testing.T) {
		filters := extractor.ExtractFilters("la cuantía es $50,000")
		assert.Equal(t, "50000", filters[domain.FilterKeyCuantia])
	})

	t.Run("fecha is canonicalized then normalized", func(t *testing.T) {
		filters := extractor.ExtractFilters("la fecha es 15/03/2024")
		assert.Equal(t, "2024 03 15", filters[domain.FilterKeyFecha])
	})

	t.Run("tipo de medida maps to the canonical label", func(t *testing.T) {
		filters := extractor.ExtractFilters("el tipo de medida es embargo")
		assert.Equal(t, "Embargo", filters[domain.FilterKeyTipoMedida])
	})

	t.Run("expediente reference stays raw", func(t *testing.T) {
		filters := extractor.ExtractFilters("resoluciones del expediente ABC1234567")
		assert.Equal(t, "ABC1234567", filters[domain.FilterKeyDocumentID])
	})

	t.Run("unknown measure is dropped", func(t *testing.T) {
		filters := extractor.ExtractFilters("el tipo de medida es inexistente")
		assert.NotContains(t, filters, domain.FilterKeyTipoMedida)
	})
}

func TestFilterExtractor_ExtractFilters_EntityFallback(t *testing.T) {
	extractor := newTestExtractor(t)

	t.Run("first name fills demandante", func(t *testing.T) {
		filters := extractor.ExtractFilters("¿Qué reclama Juan Pérez según la demanda?")
		assert.Equal(t, "juan perez", filters[domain.FilterKeyDemandante])
	})

	t.Run("first amount fills cuantia", func(t *testing.T) {
		filters := extractor.ExtractFilters("se reclaman $1,250,000.00 en perjuicios")
		assert.Equal(t, "125000000", filters[domain.FilterKeyCuantia])
	})

	t.Run("first date fills fecha", func(t *testing.T) {
		filters := extractor.ExtractFilters("resoluciones dictadas 3 de enero de 2024")
		assert.Equal(t, "2024 01 03", filters[domain.FilterKeyFecha])
	})

	t.Run("pattern match wins over fallback", func(t *testing.T) {
		filters := extractor.ExtractFilters("Ana Ruiz representa al demandante Pedro Gómez.")
		assert.Equal(t, "pedro gomez", filters[domain.FilterKeyDemandante])
	})
}

func TestFilterExtractor_ExtractFilters_EmptyQuery(t *testing.T) {
	extractor := newTestExtractor(t)

	filters := extractor.ExtractFilters("")
	assert.Empty(t, filters)
}

func TestFilterExtractor_ValidateFilters(t *testing.T) {
	extractor := newTestExtractor(t)

	t.Run("strips empty values", func(t *testing.T) {
		validated := extractor.ValidateFilters(domain.FilterSet{
			domain.FilterKeyTipoMedida: "   ",
			domain.FilterKeyDocumentID: "ABC1234567",
		})
		assert.Equal(t, domain.FilterSet{domain.FilterKeyDocumentID: "ABC1234567"}, validated)
	})

	t.Run("renormalizes normalized keys", func(t *testing.T) {
		validated := extractor.ValidateFilters(domain.FilterSet{
			domain.FilterKeyDemandante: "Juan Pérez",
		})
		assert.Equal(t, "juan perez", validated[domain.FilterKeyDemandante])
	})

	t.Run("drops values that normalize to nothing", func(t *testing.T) {
		validated := extractor.ValidateFilters(domain.FilterSet{
			domain.FilterKeyFecha: "---",
		})
		assert.Empty(t, validated)
	})

	t.Run("idempotent over clean filters", func(t *testing.T) {
		clean := extractor.ValidateFilters(extractor.ExtractFilters("la cuantía es $50,000"))
		assert.Equal(t, clean, extractor.ValidateFilters(clean))
	})
}

func TestLoadFilterPatterns(t *testing.T) {
	t.Run("loads a valid table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "patterns.yaml")
		content := `
- field: demandante
  key: demandante_normalized
  patterns:
    - '(?i)demandante\s+es\s+([A-ZÁÉÍÓÚÑ\s]+)'
- field: expediente
  key: document_id
  patterns:
    - '\b[A-Z]{2,4}\d{6,10}\b'
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		table, err := LoadFilterPatterns(path)
		require.NoError(t, err)
		require.Len(t, table, 2)
		assert.Equal(t, "demandante", table[0].Field)
		assert.Equal(t, domain.FilterKeyDemandante, table[0].Key)
		assert.Len(t, table[0].Patterns, 1)

		_, err = NewFilterExtractor(table, nil)
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFilterPatterns(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("field: [unclosed"), 0o600))

		_, err := LoadFilterPatterns(path)
		assert.Error(t, err)
	})
}
