package ingest

import (
	"regexp"
	"strings"
)

// Characters that can trigger formula execution when the value is later
// opened in a spreadsheet.
const formulaChars = "=+-@\t\r\n"

// sanitizeCell neutralises spreadsheet formula injection by prefixing
// dangerous leading characters with a single quote. Applied to free-text
// cells only, never to the amount column.
func sanitizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if strings.ContainsRune(formulaChars, rune(value[0])) {
		return "'" + value
	}
	return value
}

var (
	traversalPattern = regexp.MustCompile(`\.\.+`)
	unsafePattern    = regexp.MustCompile(`[^\w\s\-.]`)
)

// sanitizeFileName strips directory components, traversal sequences and
// unsafe characters from an uploaded file name.
func sanitizeFileName(name string) string {
	if name == "" {
		return "unnamed_file"
	}
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = traversalPattern.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "\x00", "")
	name = unsafePattern.ReplaceAllString(name, "")
	if trimmed := strings.TrimLeft(name, "."); trimmed != name {
		name = "file_" + trimmed
	}
	if name == "" || name == "file_" {
		name = "unnamed_file"
	}
	if len(name) > 200 {
		ext := ""
		if idx := strings.LastIndex(name, "."); idx > 0 {
			ext = name[idx:]
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}

var sensitiveFragments = []string{"sqlstate", "pgx", "postgres", "/app/", "/home/", "goroutine"}

// sanitizeErrorMessage removes storage internals from messages destined for
// the upload error log and truncates long ones.
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lower, fragment) {
			return "an error occurred while processing this row"
		}
	}
	if len(message) > 200 {
		return message[:200] + "..."
	}
	return message
}
