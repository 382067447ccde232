package annotation

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies an annotation.
type Type string

const (
	TypeHighlight  Type = "highlight"
	TypeComment    Type = "comment"
	TypeQuestion   Type = "question"
	TypeCorrection Type = "correction"
)

// Annotation marks a range of a document's extracted text. Its lifecycle is
// owned by the store; the resolver only reads the offsets.
type Annotation struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Type        Type      `json:"type"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	Location    Location  `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the annotation against the length (in runes) of the text it
// targets.
func (a Annotation) Validate(textLen int) error {
	if strings.TrimSpace(a.DocumentID) == "" {
		return fmt.Errorf("document_id is required")
	}
	if a.StartOffset < 0 || a.EndOffset < a.StartOffset {
		return fmt.Errorf("invalid range [%d, %d)", a.StartOffset, a.EndOffset)
	}
	if a.EndOffset > textLen {
		return fmt.Errorf("range end %d exceeds text length %d", a.EndOffset, textLen)
	}
	switch a.Type {
	case TypeHighlight, TypeComment, TypeQuestion, TypeCorrection:
	default:
		return fmt.Errorf("unknown annotation type %q", a.Type)
	}
	if a.Type != TypeHighlight && strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("%s annotations need content", a.Type)
	}
	return nil
}
