package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexatlas/lexrag/internal/domain"
)

func TestResponseAssembler_BuildContext(t *testing.T) {
	assembler := NewResponseAssembler()

	t.Run("no results yields the fixed message", func(t *testing.T) {
		assert.Equal(t, "No se encontraron documentos relevantes para la consulta.", assembler.BuildContext(nil))
	})

	t.Run("labels each fragment with its provenance", func(t *testing.T) {
		results := []domain.CorrelatedResult{
			{
				Content: "El juzgado decreta el embargo preventivo.",
				Source:  domain.Source{DocumentID: "exp-001", ChunkPosition: 1, TotalChunks: 3},
			},
			{
				Content: "La cuantía asciende a $50,000.",
				Source:  domain.Source{DocumentID: "exp-002", ChunkPosition: 2, TotalChunks: 5},
			},
		}

		context := assembler.BuildContext(results)
		blocks := strings.Split(context, "\n\n")
		require.Len(t, blocks, 2)
		assert.Equal(t, "[Chunk 1/3 del documento exp-001]\nEl juzgado decreta el embargo preventivo.", blocks[0])
		assert.Equal(t, "[Chunk 2/5 del documento exp-002]\nLa cuantía asciende a $50,000.", blocks[1])
	})

	t.Run("caps long fragments", func(t *testing.T) {
		long := strings.Repeat("a", 600)
		results := []domain.CorrelatedResult{
			{Content: long, Source: domain.Source{DocumentID: "exp-001", ChunkPosition: 1, TotalChunks: 1}},
		}

		context := assembler.BuildContext(results)
		assert.Contains(t, context, strings.Repeat("a", 500)+"...")
		assert.NotContains(t, context, strings.Repeat("a", 501))
	})

	t.Run("short fragments are kept whole", func(t *testing.T) {
		results := []domain.CorrelatedResult{
			{Content: "texto corto", Source: domain.Source{DocumentID: "exp-001", ChunkPosition: 1, TotalChunks: 1}},
		}

		assert.NotContains(t, assembler.BuildContext(results), "...")
	})
}

func TestResponseAssembler_BuildPrompt(t *testing.T) {
	assembler := NewResponseAssembler()

	prompt := assembler.BuildPrompt("bloque de contexto", "¿cuál es la cuantía?")
	assert.Contains(t, prompt, "Contexto: bloque de contexto")
	assert.Contains(t, prompt, "Pregunta del usuario: ¿cuál es la cuantía?")
	assert.Contains(t, prompt, "Responde en español de manera profesional y jurídica")
	assert.Contains(t, prompt, "No se encuentra en el expediente proporcionado.")
}

func TestResponseAssembler_CitationFooter(t *testing.T) {
	assembler := NewResponseAssembler()

	t.Run("known source", func(t *testing.T) {
		footer := assembler.CitationFooter(domain.Source{DocumentID: "exp-001", ChunkPosition: 2, TotalChunks: 7})
		assert.Equal(t, "\n\nFuente: exp-001, Chunk 2 de 7", footer)
	})

	t.Run("unknown source", func(t *testing.T) {
		footer := assembler.CitationFooter(domain.UnknownSource())
		assert.Equal(t, "\n\nFuente: unknown, Chunk 0 de 0", footer)
	})
}
