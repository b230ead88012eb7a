package prompt

import (
	"strings"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/utils"
)

// Composed is the final prompt sent to the AI service.
type Composed struct {
	Instruction  string
	TemplateText string
	ContentText  string
	Text         string
	TotalLength  int
	Truncated    bool
}

// Composer merges instruction, optional template and extracted content
// into a bounded-length prompt. Its ceiling is independent of the
// combine-step ceiling: folder mode and template mode can stack content,
// so the two limits are configured separately.
type Composer struct {
	maxLength int
}

func NewComposer(maxLength int) *Composer {
	if maxLength <= 0 {
		maxLength = constants.MaxPromptLength
	}
	return &Composer{maxLength: maxLength}
}

// WithTemplate prefixes the instruction with an explicit directive to
// use the template.
func WithTemplate(templateText, instruction string) string {
	if templateText == "" {
		return instruction
	}
	return "Use this template: " + templateText + ". " + instruction
}

// ComposeCombined builds the prompt for a merged multi-file corpus.
func (c *Composer) ComposeCombined(instruction, templateText, combinedContent string) Composed {
	base := WithTemplate(templateText, instruction)
	text := base
	if combinedContent != "" {
		text = base + "\n\nProcess this combined content from multiple files:\n" + combinedContent
	}
	return c.finish(instruction, templateText, combinedContent, text)
}

// ComposeSingle builds the prompt for one file's extracted text.
func (c *Composer) ComposeSingle(instruction, templateText, content string) Composed {
	base := WithTemplate(templateText, instruction)
	text := base
	if content != "" {
		text = base + " Process this file content: " + content
	}
	return c.finish(instruction, templateText, content, text)
}

func (c *Composer) finish(instruction, templateText, content, text string) Composed {
	truncated := len(text) > c.maxLength
	text = utils.Truncate(text, c.maxLength)
	return Composed{
		Instruction:  strings.TrimSpace(instruction),
		TemplateText: templateText,
		ContentText:  content,
		Text:         text,
		TotalLength:  len(text),
		Truncated:    truncated,
	}
}
