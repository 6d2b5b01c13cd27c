package m3uparse

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
)

// chunkSize is the read granularity for the tail-buffered scanner; it
// bounds memory independent of how long any single M3U line is.
const chunkSize = 64 * 1024

// StreamParse consumes r as M3U text and yields one RawEntry per
// #EXTINF+URL pair, in exact source order, over the returned channel.
// The error channel receives at most one error (ErrMalformedStream or
// an io error), after which both channels are closed. The sequence is
// lazy, finite, and non-restartable: on any error, the successfully
// parsed prefix is discarded — the whole attempt fails rather than
// returning a partial playlist.
func StreamParse(ctx context.Context, r io.Reader) (<-chan RawEntry, <-chan error) {
	entries := make(chan RawEntry, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		var tail []byte
		buf := make([]byte, chunkSize)
		var pending *extinfLine
		sawHeader := false
		lineNo := 0
		warnedMissingHeader := false

		emit := func(line string) error {
			lineNo++
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				return nil
			}
			switch {
			case trimmed == "#EXTM3U" || strings.HasPrefix(trimmed, "#EXTM3U "):
				sawHeader = true
			case strings.HasPrefix(trimmed, "#EXTINF:"):
				p, err := parseEXTINF(trimmed, lineNo)
				if err != nil {
					return err
				}
				pending = p
			case strings.HasPrefix(trimmed, "http"):
				if pending == nil {
					// URL with no preceding #EXTINF is ignored, not fatal —
					// providers occasionally emit stray lines.
					return nil
				}
				entry := RawEntry{
					Duration:   pending.duration,
					Attrs:      pending.attrs,
					Title:      pending.title,
					URL:        trimmed,
					LineNumber: pending.lineNumber,
				}
				pending = nil
				select {
				case entries <- entry:
				case <-ctx.Done():
					return ctx.Err()
				}
			case strings.HasPrefix(trimmed, "#"):
				// other directive lines are ignored
			default:
				// non-# non-URL content after a pending EXTINF clears it;
				// a playlist line that's neither directive nor URL is noise.
				pending = nil
			}
			return nil
		}

		for {
			if err := ctx.Err(); err != nil {
				errc <- err
				return
			}
			n, readErr := r.Read(buf)
			if n > 0 {
				tail = append(tail, buf[:n]...)
				for {
					idx := bytes.IndexByte(tail, '\n')
					if idx < 0 {
						break
					}
					line := string(tail[:idx])
					tail = tail[idx+1:]
					if err := emit(line); err != nil {
						errc <- err
						return
					}
				}
			}
			if readErr != nil {
				if readErr == io.EOF {
					if len(tail) > 0 {
						// Final line lacking a trailing newline is still emitted.
						if err := emit(string(tail)); err != nil {
							errc <- err
							return
						}
					}
					if !sawHeader && !warnedMissingHeader {
						warnedMissingHeader = true
						// Missing #EXTM3U is a warning, not a failure.
					}
					return
				}
				errc <- readErr
				return
			}
		}
	}()

	return entries, errc
}

type extinfLine struct {
	duration   float64
	attrs      map[string]string
	title      string
	lineNumber int
}

// parseEXTINF parses "#EXTINF:duration <attr="v">*,title".
func parseEXTINF(line string, lineNo int) (*extinfLine, error) {
	rest := strings.TrimPrefix(line, "#EXTINF:")
	comma := strings.LastIndex(rest, ",")
	if comma < 0 {
		return nil, ErrMalformedStream
	}
	head := rest[:comma]
	title := strings.TrimSpace(rest[comma+1:])

	fields := strings.SplitN(strings.TrimSpace(head), " ", 2)
	duration, _ := strconv.ParseFloat(fields[0], 64)

	attrs := make(map[string]string)
	if len(fields) > 1 {
		attrs = parseAttrs(fields[1])
	}

	return &extinfLine{duration: duration, attrs: attrs, title: title, lineNumber: lineNo}, nil
}

// parseAttrs parses `key="value"` pairs from an EXTINF attribute string.
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			break
		}
		key := s[start:i]
		i++ // skip '='
		if i >= len(s) || s[i] != '"' {
			continue
		}
		i++ // skip opening quote
		valStart := i
		for i < len(s) && s[i] != '"' {
			i++
		}
		val := s[valStart:i]
		if i < len(s) {
			i++ // skip closing quote
		}
		attrs[strings.ToLower(key)] = val
	}
	return attrs
}
