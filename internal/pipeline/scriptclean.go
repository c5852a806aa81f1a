// Package pipeline implements the generation stages: script, narration,
// visuals, timeline render, and export. Each stage consumes prior outputs
// and a resolved provider, reports progress, and records artifacts.
package pipeline

import (
	"regexp"
	"strings"
)

// maxScenes caps how many visual scenes a script expands into.
const maxScenes = 10

// Production markers that models embed in scripts but that must never be
// narrated. Matched case-insensitively anywhere in a line.
var bracketMarkerRE = regexp.MustCompile(`(?i)\[(?:VISUAL|PAUSE|MUSIC|SFX|CUT|FADE|B-?ROLL|NOTE)[^\]]*\]`)

// Meta label lines dropped entirely. Anchored at line start after trim.
var metaLineRE = regexp.MustCompile(`(?i)^(?:word count:|tts pacing:|ai detection:|visual synergy:|emotional flow:|accuracy:|p\.s\.|sources:|\d+\s*wpm\b)`)

// Markdown headings mark scene boundaries but are not read aloud.
var headingRE = regexp.MustCompile(`^#{1,6}\s`)

// Horizontal rules are layout noise.
var hruleRE = regexp.MustCompile(`^-{3,}$|^\*{3,}$|^_{3,}$`)

var spacesRE = regexp.MustCompile(`\s+`)

// CleanScript strips production markup from raw model output, leaving only
// narration text. Paragraph breaks survive as scene boundaries. The
// function is pure and idempotent: CleanScript(CleanScript(x)) ==
// CleanScript(x) for all x.
func CleanScript(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var out []string
	blank := true
	for _, line := range strings.Split(raw, "\n") {
		line = bracketMarkerRE.ReplaceAllString(line, " ")
		line = strings.TrimSpace(spacesRE.ReplaceAllString(line, " "))

		boundary := line == "" ||
			metaLineRE.MatchString(line) ||
			headingRE.MatchString(line) ||
			hruleRE.MatchString(line)

		if boundary {
			if !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}

		out = append(out, line)
		blank = false
	}

	// Trim a trailing boundary marker.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n")
}

// SplitScenes breaks a cleaned script into scene paragraphs. Blank lines
// delimit scenes; overflow beyond the cap merges into the final scene.
// Always returns at least one scene for non-empty input.
func SplitScenes(cleaned string) []string {
	var scenes []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			scenes = append(scenes, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range strings.Split(cleaned, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	if len(scenes) > maxScenes {
		tail := strings.Join(scenes[maxScenes-1:], " ")
		scenes = append(scenes[:maxScenes-1], tail)
	}
	return scenes
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
