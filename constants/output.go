package constants

// OutputFormat is a rendering target for AI responses.
type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatJSON     OutputFormat = "json"
	FormatHTML     OutputFormat = "html"
	FormatMarkdown OutputFormat = "markdown"
)

// FileExtension returns the on-disk extension (with dot) for the format.
// Unknown formats fall back to plain text.
func (f OutputFormat) FileExtension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

// TruncationMarker is appended whenever content is cut by a length ceiling.
const TruncationMarker = "\n\n... (content truncated due to length limit)"

// Default length ceilings. The combine step and the composed prompt carry
// separately configurable ceilings even though the defaults match.
const (
	MaxCombinedLength = 30000
	MaxPromptLength   = 30000
)
