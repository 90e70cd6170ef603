// Package text splits documentation into embeddable chunks with stable
// identity: each chunk carries a hash over its source URL, position, and
// content, so unchanged chunks are recognized across runs.
package text

import (
	"regexp"
	"strings"
)

type DocType string

const (
	DocTypeProse  DocType = "prose"
	DocTypeCode   DocType = "code"
	DocTypeAPI    DocType = "api"
	DocTypeConfig DocType = "config"
	DocTypeCmd    DocType = "cmd"
)

// Piece is an intermediate split result before chunk identity is assigned.
type Piece struct {
	Content  string
	Type     DocType
	Language string
}

// charsPerToken is the rough budget conversion used everywhere below.
const charsPerToken = 4

var (
	fenceRe      = regexp.MustCompile("(?s)```([a-zA-Z0-9_]+)?[[:space:]]*\\n(.*?)\\n[[:space:]]*```")
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s`)
	editLinkRe   = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^)]+\)\s*$`)
	tocRe        = regexp.MustCompile(`(?mi)^#{1,3}\s+(?:table of )?contents?\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	navLinkRe    = regexp.MustCompile(`^\s*[-*]?\s*\[.*?\]\(.*?\)\s*$`)
	installCmdRe = regexp.MustCompile(`(?mi)^\s*(npm|pnpm|yarn|pip|cargo|brew|apt|go|mvn|gradle)\s+(install|add|get|i)\b`)
)

// stripBoilerplate removes documentation furniture that carries no meaning
// for retrieval: edit links and generated tables of contents.
func stripBoilerplate(text string) string {
	text = editLinkRe.ReplaceAllString(text, "")
	return tocRe.ReplaceAllString(text, "")
}

// isNoise identifies pieces too low-value to embed. The heuristics are
// conservative: a borderline piece passes through.
func isNoise(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}

	// Bare section labels like "Overview".
	words := strings.Fields(trimmed)
	if len(trimmed) < 30 && len(words) <= 3 && !strings.Contains(trimmed, "\n") {
		return true
	}

	lines := nonEmptyLines(trimmed)

	// Install-only command snippets.
	if len(lines) > 0 && len(lines) <= 3 {
		allInstall := true
		for _, line := range lines {
			if !installCmdRe.MatchString(line) {
				allInstall = false
				break
			}
		}
		if allInstall {
			return true
		}
	}

	// Navigation blocks: mostly markdown links.
	if len(lines) > 2 {
		linkCount := 0
		for _, line := range lines {
			if navLinkRe.MatchString(line) {
				linkCount++
			}
		}
		if float64(linkCount)/float64(len(lines)) > 0.7 {
			return true
		}
	}

	// Short legal footers.
	lower := strings.ToLower(trimmed)
	if len(trimmed) < 200 &&
		(strings.Contains(lower, "all rights reserved") || strings.Contains(trimmed, "©") ||
			strings.Contains(lower, "privacy policy") || strings.Contains(lower, "terms of service")) {
		return true
	}

	return false
}

func nonEmptyLines(text string) []string {
	var result []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			result = append(result, l)
		}
	}
	return result
}

// Split divides documentation text into pieces of at most maxTokens
// (approximated at four characters per token). Fenced code blocks are kept
// intact when they fit and split by line when they do not; prose is split at
// header, paragraph, line, and finally word boundaries. Noise pieces are
// dropped.
func Split(text string, maxTokens int) []Piece {
	text = stripBoilerplate(text)

	var pieces []Piece
	lastIndex := 0
	for _, match := range fenceRe.FindAllStringSubmatchIndex(text, -1) {
		if match[0] > lastIndex {
			pieces = append(pieces, splitProse(text[lastIndex:match[0]], maxTokens)...)
		}

		lang := ""
		if match[2] != -1 {
			lang = text[match[2]:match[3]]
		}
		body := text[match[4]:match[5]]
		pieces = append(pieces, splitFence(body, lang, maxTokens)...)
		lastIndex = match[1]
	}
	if lastIndex < len(text) {
		pieces = append(pieces, splitProse(text[lastIndex:], maxTokens)...)
	}

	kept := pieces[:0]
	for _, p := range pieces {
		if p.Type != DocTypeProse || !isNoise(p.Content) {
			kept = append(kept, p)
		}
	}
	return kept
}

func fenceType(lang string) DocType {
	switch lang {
	case "yaml", "json", "toml", "properties", "xml":
		return DocTypeConfig
	case "bash", "sh", "shell", "console":
		return DocTypeCmd
	case "http", "graphql", "openapi", "swagger":
		return DocTypeAPI
	default:
		return DocTypeCode
	}
}

func splitFence(body, lang string, maxTokens int) []Piece {
	docType := fenceType(lang)
	maxChars := maxTokens * charsPerToken

	wrap := func(content string) Piece {
		return Piece{
			Content:  "```" + lang + "\n" + content + "\n```",
			Type:     docType,
			Language: lang,
		}
	}

	if len(body) <= maxChars {
		return []Piece{wrap(body)}
	}

	var pieces []Piece
	var current strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > maxChars {
			pieces = append(pieces, wrap(strings.TrimRight(current.String(), "\n")))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		pieces = append(pieces, wrap(strings.TrimRight(current.String(), "\n")))
	}
	return pieces
}

func splitProse(text string, maxTokens int) []Piece {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	maxChars := maxTokens * charsPerToken

	var sections []string
	lastIdx := 0
	for _, loc := range headerRe.FindAllStringIndex(text, -1) {
		if loc[0] > lastIdx {
			sections = append(sections, text[lastIdx:loc[0]])
		}
		lastIdx = loc[0]
	}
	if lastIdx < len(text) {
		sections = append(sections, text[lastIdx:])
	}

	var pieces []Piece
	emit := func(content string) {
		content = strings.TrimSpace(content)
		if content != "" {
			pieces = append(pieces, Piece{Content: content, Type: proseType(content)})
		}
	}

	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if len(section) <= maxChars {
			emit(section)
			continue
		}

		var current strings.Builder
		flush := func() {
			if current.Len() > 0 {
				emit(current.String())
				current.Reset()
			}
		}
		appendUnit := func(unit, sep string) {
			if current.Len() > 0 && current.Len()+len(sep)+len(unit) > maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString(sep)
			}
			current.WriteString(unit)
		}

		for _, para := range strings.Split(section, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			if len(para) <= maxChars {
				appendUnit(para, "\n\n")
				continue
			}
			for _, line := range strings.Split(para, "\n") {
				if len(line) <= maxChars {
					appendUnit(line, "\n")
					continue
				}
				for _, word := range strings.Fields(line) {
					appendUnit(word, " ")
				}
			}
		}
		flush()
	}
	return pieces
}

func proseType(content string) DocType {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "swagger") || strings.Contains(lower, "openapi") {
		return DocTypeAPI
	}
	if strings.Contains(lower, "endpoint") && strings.Contains(lower, "method") &&
		(strings.Contains(lower, "url") || strings.Contains(lower, "http")) {
		return DocTypeAPI
	}
	return DocTypeProse
}
