// Package manifest turns HLS playlist documents into an ordered track list.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Eyevinn/hls-m3u8/m3u8"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

const (
	headerTag       = "#EXTM3U"
	minDetectConfid = 50
)

// Track is one playable entry of a manifest. Title is empty when the
// manifest does not declare one.
type Track struct {
	URI   string
	Title string
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(body []byte, declaredCharset string) ([]Track, error) {
	return p.ParseWithBase(body, declaredCharset, "")
}

// ParseWithBase parses body and resolves relative track URIs against base.
func (p *Parser) ParseWithBase(body []byte, declaredCharset, base string) ([]Track, error) {
	text, err := decodeText(body, declaredCharset)
	if err != nil {
		return nil, parseError(err)
	}

	hasURI, err := scan(text)
	if err != nil {
		return nil, parseError(err)
	}
	if !hasURI {
		return []Track{}, nil
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, parseError(err)
	}

	var tracks []Track
	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, parseError(errors.New("unexpected master playlist type"))
		}
		tracks = masterTracks(master)
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, parseError(errors.New("unexpected media playlist type"))
		}
		tracks = mediaTracks(media)
	default:
		return nil, parseError(errors.New("unknown playlist type"))
	}

	if base != "" {
		if err := resolveAgainst(tracks, base); err != nil {
			return nil, parseError(err)
		}
	}
	return tracks, nil
}

// masterTracks yields one track per variant. The title is the NAME of the
// VIDEO rendition the variant references, else the variant's own NAME.
func masterTracks(master *m3u8.MasterPlaylist) []Track {
	videoNames := map[string]string{}
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, alt := range v.Alternatives {
			if alt == nil || !strings.EqualFold(alt.Type, "VIDEO") {
				continue
			}
			if _, seen := videoNames[alt.GroupId]; !seen {
				videoNames[alt.GroupId] = strings.TrimSpace(alt.Name)
			}
		}
	}

	tracks := make([]Track, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || strings.TrimSpace(v.URI) == "" {
			continue
		}
		title := ""
		if v.Video != "" {
			title = videoNames[v.Video]
		}
		if title == "" {
			title = strings.TrimSpace(v.Name)
		}
		tracks = append(tracks, Track{
			URI:   strings.TrimSpace(v.URI),
			Title: title,
		})
	}
	return tracks
}

func mediaTracks(media *m3u8.MediaPlaylist) []Track {
	tracks := make([]Track, 0, len(media.Segments))
	for _, seg := range media.Segments {
		if seg == nil || strings.TrimSpace(seg.URI) == "" {
			continue
		}
		tracks = append(tracks, Track{
			URI:   strings.TrimSpace(seg.URI),
			Title: strings.TrimSpace(seg.Title),
		})
	}
	return tracks
}

// scan validates the header and reports whether any URI line exists.
func scan(text string) (bool, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawHeader := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !sawHeader {
			if !strings.HasPrefix(line, headerTag) {
				return false, fmt.Errorf("missing %s header", headerTag)
			}
			sawHeader = true
			continue
		}
		if !strings.HasPrefix(line, "#") {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	if !sawHeader {
		return false, errors.New("empty document")
	}
	return false, nil
}

func decodeText(body []byte, label string) (string, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	label = strings.TrimSpace(label)
	detected := false
	if label == "" {
		label = detectCharset(body)
		detected = true
	}

	reader, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		if detected {
			return string(body), nil
		}
		return "", fmt.Errorf("charset %q: %w", label, err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return string(decoded), nil
}

func detectCharset(body []byte) string {
	if len(body) == 0 {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil || result.Confidence < minDetectConfid {
		return "utf-8"
	}
	return result.Charset
}

func resolveAgainst(tracks []Track, base string) error {
	baseURL, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("base url: %w", err)
	}
	for i := range tracks {
		ref, err := url.Parse(tracks[i].URI)
		if err != nil {
			return fmt.Errorf("track %d uri: %w", i, err)
		}
		tracks[i].URI = baseURL.ResolveReference(ref).String()
	}
	return nil
}

func parseError(err error) error {
	return domain.NewError(domain.ErrParse, "parse manifest", err)
}
