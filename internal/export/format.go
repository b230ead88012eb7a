package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rapidassist/docpipe/constants"
)

// FormatOptions tweaks rendering of a single response.
type FormatOptions struct {
	Title  string         // HTML/Markdown document title; default "AI Response"
	CSS    string         // extra CSS appended to the HTML shell
	Schema map[string]any // optional JSON schema to validate json output against
}

// Format renders AI response content into the target encoding. Content
// may be a string or an already-structured value.
func Format(content any, format constants.OutputFormat, opts FormatOptions) (any, error) {
	if opts.Title == "" {
		opts.Title = "AI Response"
	}

	switch format {
	case constants.FormatJSON:
		return formatAsJSON(content, opts)
	case constants.FormatHTML:
		return formatAsHTML(content, opts), nil
	case constants.FormatMarkdown:
		return formatAsMarkdown(content, opts), nil
	case constants.FormatText, "":
		return formatAsText(content), nil
	default:
		return formatAsText(content), nil
	}
}

func formatAsText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// formatAsJSON parses string content if possible, wrapping unparseable
// strings as {"content": ...}. Structured content passes through
// untouched so a round trip is deep-equal.
func formatAsJSON(content any, opts FormatOptions) (any, error) {
	out := content
	if s, ok := content.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			out = parsed
		} else {
			out = map[string]any{"content": s}
		}
	}

	if opts.Schema != nil {
		if err := ValidateAgainstSchema(opts.Schema, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

func formatAsHTML(content any, opts FormatOptions) string {
	var body string
	switch v := content.(type) {
	case string:
		body = strings.ReplaceAll(htmlEscaper.Replace(v), "\n", "<br>")
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			body = htmlEscaper.Replace(fmt.Sprintf("%v", v))
		} else {
			body = "<pre>" + htmlEscaper.Replace(string(b)) + "</pre>"
		}
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <style>
    body {
      font-family: Arial, sans-serif;
      line-height: 1.6;
      margin: 0 auto;
      padding: 20px;
      max-width: 800px;
    }
    pre {
      background-color: #f5f5f5;
      padding: 10px;
      border-radius: 5px;
      overflow-x: auto;
    }
    %s
  </style>
</head>
<body>
  <h1>%s</h1>
  <div class="content">
    %s
  </div>
</body>
</html>
`, htmlEscaper.Replace(opts.Title), opts.CSS, htmlEscaper.Replace(opts.Title), body)
}

func formatAsMarkdown(content any, opts FormatOptions) string {
	var body string
	switch v := content.(type) {
	case string:
		body = v
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			body = fmt.Sprintf("%v", v)
		} else {
			body = "```json\n" + string(b) + "\n```"
		}
	}
	return "# " + opts.Title + "\n\n" + body
}
