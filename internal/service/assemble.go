package service

import (
	"fmt"
	"strings"

	"github.com/lexatlas/lexrag/internal/domain"
)

const (
	// maxFragmentChars bounds how much of each fragment enters the prompt
	maxFragmentChars = 500

	noDocumentsMessage = "No se encontraron documentos relevantes para la consulta."
)

const promptTemplate = `
Contexto: %s

Pregunta del usuario: %s

Instrucciones específicas:
- Si la pregunta busca un resumen, genera un resumen estructurado del expediente
- Si la pregunta es específica sobre contenido, responde basándote únicamente en el contexto proporcionado
- Si la pregunta es sobre metadatos (fechas, nombres, cuantías), extrae la información relevante
- Si la información no está en el contexto, responde: "No se encuentra en el expediente proporcionado."
- Responde en español de manera profesional y jurídica

Tareas posibles:
- Resumir el contenido legal
- Responder preguntas específicas del contenido
- Extraer campos clave como fechas, cuantías o nombres
- Identificar tipos de medidas cautelares

Respuesta:
`

// ResponseAssembler renders retrieval output into the prompt context and
// the fixed citation format. Pure string building, no collaborators.
type ResponseAssembler struct{}

// NewResponseAssembler creates a ResponseAssembler
func NewResponseAssembler() *ResponseAssembler {
	return &ResponseAssembler{}
}

// BuildContext renders the retrieved fragments as labeled context blocks.
// Each fragment is capped at maxFragmentChars; an empty result list
// yields the fixed no-documents message.
func (a *ResponseAssembler) BuildContext(results []domain.CorrelatedResult) string {
	if len(results) == 0 {
		return noDocumentsMessage
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		text := r.Content
		if len([]rune(text)) > maxFragmentChars {
			text = string([]rune(text)[:maxFragmentChars]) + "..."
		}
		header := fmt.Sprintf("[Chunk %d/%d del documento %s]",
			r.Source.ChunkPosition, r.Source.TotalChunks, r.Source.DocumentID)
		blocks = append(blocks, header+"\n"+text)
	}

	return strings.Join(blocks, "\n\n")
}

// BuildPrompt fills the answer prompt with context and query
func (a *ResponseAssembler) BuildPrompt(context, query string) string {
	return fmt.Sprintf(promptTemplate, context, query)
}

// CitationFooter renders the mandatory source citation appended to every
// answer. Format: "Fuente: {document_id}, Chunk {chunk_position} de
// {total_chunks}", preceded by a blank line.
func (a *ResponseAssembler) CitationFooter(source domain.Source) string {
	return "\n\n" + source.Citation()
}
