package extract

import (
	"fmt"
	"unicode/utf8"
)

// decodeText passes plain text through, rejecting bytes that are not
// valid UTF-8 rather than emitting mojibake.
func decodeText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("file content is not valid UTF-8")
	}
	return string(content), nil
}
