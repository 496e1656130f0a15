// Package prune clips oversized text while keeping its head and tail.
package prune

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMarker   = "[truncated]"
	DefaultMaxBytes = 16 * 1024
	DefaultMaxLines = 400

	markerBytes = 160
	markerLines = 6
)

// Budget bounds a text and how much of each edge survives clipping.
// Zero edge sizes split what the marker leaves over three to one between head and tail.
type Budget struct {
	MaxBytes  int
	MaxLines  int
	HeadBytes int
	TailBytes int
	HeadLines int
	TailLines int
	Marker    string
}

func (b Budget) normalize() Budget {
	if b.MaxBytes <= 0 {
		b.MaxBytes = DefaultMaxBytes
	}
	if b.MaxLines <= 0 {
		b.MaxLines = DefaultMaxLines
	}
	if b.Marker == "" {
		b.Marker = DefaultMarker
	}
	if b.HeadBytes <= 0 && b.TailBytes <= 0 {
		avail := max(b.MaxBytes-markerBytes, 0)
		b.HeadBytes, b.TailBytes = avail*3/4, avail/4
	}
	if b.HeadLines <= 0 && b.TailLines <= 0 {
		avail := max(b.MaxLines-markerLines, 0)
		b.HeadLines, b.TailLines = avail*3/4, avail/4
	}
	return b
}

// Exceeds reports whether s is over the byte or line budget.
func (b Budget) Exceeds(s string) bool {
	b = b.normalize()
	return len(s) > b.MaxBytes || CountLines(s) > b.MaxLines
}

func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Clip returns s unchanged when it fits, otherwise a marker line followed by its head and tail.
// The result never exceeds the budget and never splits a UTF-8 sequence.
func Clip(s, label string, b Budget) string {
	b = b.normalize()
	if !b.Exceeds(s) {
		return s
	}
	head := prefix(s, b.HeadBytes, b.HeadLines)
	tail := suffix(s, b.TailBytes, b.TailLines)
	out := fmt.Sprintf("%s %s too long (bytes=%d, lines=%d), showing head and tail\n\n%s\n\n[...]\n\n%s",
		b.Marker, label, len(s), CountLines(s), head, tail)
	if b.Exceeds(out) {
		out = prefix(out, b.MaxBytes, b.MaxLines)
	}
	if out == "" {
		return b.Marker
	}
	return out
}

func prefix(s string, maxBytes, maxLines int) string {
	if maxBytes <= 0 || maxLines <= 0 {
		return ""
	}
	if maxBytes < len(s) {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if lines := strings.SplitAfterN(s, "\n", maxLines+1); len(lines) > maxLines {
		s = strings.TrimSuffix(strings.Join(lines[:maxLines], ""), "\n")
	}
	return s
}

func suffix(s string, maxBytes, maxLines int) string {
	if maxBytes <= 0 || maxLines <= 0 {
		return ""
	}
	if maxBytes < len(s) {
		start := len(s) - maxBytes
		for start < len(s) && !utf8.RuneStart(s[start]) {
			start++
		}
		s = s[start:]
	}
	if lines := strings.Split(s, "\n"); len(lines) > maxLines {
		s = strings.Join(lines[len(lines)-maxLines:], "\n")
	}
	return s
}
