// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sse implements server-sent-event framing and the think-tag
// filter that strips <think>...</think> reasoning spans from model
// output before it reaches the client.
package sse

import (
	"regexp"
	"strings"
)

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

var nonStreamPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes every non-greedy <think>...</think> span from
// a complete (non-streaming) output. If stripping would leave nothing,
// the original text is returned unchanged — a degenerate case this
// filter must preserve rather than return an empty string for.
func StripThinkTags(text string) string {
	stripped := nonStreamPattern.ReplaceAllString(text, "")
	if strings.TrimSpace(stripped) == "" {
		return text
	}
	return stripped
}

// ThinkFilter is a streaming state machine that forwards tokens outside
// a think span immediately, and mutes output between <think> and
// </think> — tolerating both tags arriving split across token
// boundaries and never splitting a multi-byte rune.
//
// Thread Safety: ThinkFilter is not safe for concurrent use; one
// instance per in-flight stream.
type ThinkFilter struct {
	buf   strings.Builder
	muted bool
}

// NewThinkFilter constructs a filter starting in the unmuted state.
func NewThinkFilter() *ThinkFilter {
	return &ThinkFilter{}
}

// Feed appends a token and returns the text that should now be
// forwarded to the client, which may be empty.
func (f *ThinkFilter) Feed(token string) string {
	f.buf.WriteString(token)
	return f.drain()
}

// drain repeatedly looks for the relevant tag in the buffered text,
// emitting everything before it (when unmuted) or discarding it (when
// muted), until no complete tag is found — at which point it holds
// back any suffix that could be the start of a split tag.
func (f *ThinkFilter) drain() string {
	var out strings.Builder
	for {
		buffered := f.buf.String()
		if !f.muted {
			idx := strings.Index(buffered, openTag)
			if idx == -1 {
				safe, pending := splitSafeSuffix(buffered, openTag)
				out.WriteString(safe)
				f.buf.Reset()
				f.buf.WriteString(pending)
				return out.String()
			}
			out.WriteString(buffered[:idx])
			f.buf.Reset()
			f.buf.WriteString(buffered[idx+len(openTag):])
			f.muted = true
			continue
		}
		idx := strings.Index(buffered, closeTag)
		if idx == -1 {
			// Still muted; discard everything except a possible
			// partial closing tag at the very end.
			_, pending := splitSafeSuffix(buffered, closeTag)
			f.buf.Reset()
			f.buf.WriteString(pending)
			return out.String()
		}
		f.buf.Reset()
		f.buf.WriteString(buffered[idx+len(closeTag):])
		f.muted = false
	}
}

// splitSafeSuffix returns (safe, pending) where pending is the longest
// suffix of s that could be a prefix of tag (and so must be held back
// in case the rest of the tag arrives in a later token), and safe is
// everything before it.
func splitSafeSuffix(s, tag string) (safe, pending string) {
	maxCheck := len(tag) - 1
	if maxCheck > len(s) {
		maxCheck = len(s)
	}
	for n := maxCheck; n > 0; n-- {
		suffix := s[len(s)-n:]
		if strings.HasPrefix(tag, suffix) {
			return s[:len(s)-n], suffix
		}
	}
	return s, ""
}
