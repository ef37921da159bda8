package extract

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const videoFetchTimeout = 15 * time.Second

// preferredTranscriptLanguages is checked in order for manually authored
// transcripts before falling back to auto-generated ones.
var preferredTranscriptLanguages = []string{"en", "en-US", "en-GB"}

const defaultTranscriptLanguage = "en"

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID extracts the canonical 11-character video identifier from the
// URL forms YouTube uses: watch?v=, youtu.be short links, /embed/ and
// /shorts/ paths. Trailing query parameters and path garbage are ignored.
func ParseVideoID(raw string) (string, error) {
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable video URL %q: %w", raw, err)
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.Trim(strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0], "/")
	case strings.Contains(u.Path, "/embed/"):
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/embed/"), "/", 2)[0]
	case strings.Contains(u.Path, "/shorts/"):
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/shorts/"), "/", 2)[0]
	default:
		id = u.Query().Get("v")
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id found in %q", raw)
	}
	return id, nil
}

type videoFetcher struct {
	client *http.Client
}

func newVideoFetcher() *videoFetcher {
	return &videoFetcher{client: &http.Client{Timeout: videoFetchTimeout}}
}

type captionTrack struct {
	BaseURL        string `json:"baseUrl"`
	LanguageCode   string `json:"languageCode"`
	Kind           string `json:"kind"` // "asr" marks auto-generated tracks
	IsTranslatable bool   `json:"isTranslatable"`
}

var captionTracksPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

// extract attempts, in order: a manual transcript in a preferred language,
// an auto-generated transcript, any translatable track translated to the
// default language, and finally page metadata. Metadata thinner than the web
// minimum may be expanded by the summarizer; such units are tagged
// generated=true so callers never mistake model output for a transcript.
func (v *videoFetcher) extract(ctx context.Context, rawURL string, summarizer Summarizer) ([]DocumentUnit, error) {
	id, err := ParseVideoID(rawURL)
	if err != nil {
		return nil, extractionErr(KindYouTube, "could not parse video id", err)
	}

	watchURL := "https://www.youtube.com/watch?v=" + id
	page, err := v.fetch(ctx, watchURL)
	if err != nil {
		return nil, extractionErr(KindYouTube, "failed to fetch video page", err)
	}

	title, description := videoMetadata(page)
	if title == "" {
		title = "YouTube Video " + id
	}

	transcript, transcriptKind := v.transcriptText(ctx, page)
	if transcript != "" {
		return []DocumentUnit{{
			Content:    transcript,
			SourceKind: KindYouTube,
			SourceURI:  watchURL,
			Title:      title,
			Extra:      map[string]string{"transcript": transcriptKind, "video_id": id},
		}}, nil
	}

	// No transcript: fall back to page metadata.
	content := strings.TrimSpace(title + "\n" + description)
	extra := map[string]string{"transcript": "none", "video_id": id}
	if utf8.RuneCountInString(content) < minWebContentLength && summarizer != nil {
		summary, err := summarizer.Summarize(ctx, content)
		if err == nil && summary != "" {
			content = summary
			extra["generated"] = "true"
		}
	}
	if content == "" {
		return nil, extractionErr(KindYouTube, "no transcript or metadata available", nil)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: KindYouTube,
		SourceURI:  watchURL,
		Title:      title,
		Extra:      extra,
	}}, nil
}

// transcriptText picks the best caption track and downloads it. Returns an
// empty string when no usable track exists.
func (v *videoFetcher) transcriptText(ctx context.Context, page string) (string, string) {
	match := captionTracksPattern.FindStringSubmatch(page)
	if match == nil {
		return "", ""
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(match[1]), &tracks); err != nil || len(tracks) == 0 {
		return "", ""
	}

	pick := func() (captionTrack, string, bool) {
		for _, lang := range preferredTranscriptLanguages {
			for _, t := range tracks {
				if t.Kind != "asr" && t.LanguageCode == lang {
					return t, "manual", true
				}
			}
		}
		for _, t := range tracks {
			if t.Kind == "asr" {
				return t, "generated", true
			}
		}
		for _, t := range tracks {
			if t.IsTranslatable {
				t.BaseURL += "&tlang=" + defaultTranscriptLanguage
				return t, "translated", true
			}
		}
		return captionTrack{}, "", false
	}

	track, kind, ok := pick()
	if !ok {
		return "", ""
	}

	body, err := v.fetch(ctx, track.BaseURL)
	if err != nil {
		return "", ""
	}

	var doc struct {
		Texts []struct {
			Content string `xml:",chardata"`
		} `xml:"text"`
	}
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return "", ""
	}

	var sb strings.Builder
	for _, t := range doc.Texts {
		line := strings.TrimSpace(html.UnescapeString(t.Content))
		if line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(line)
	}
	return sb.String(), kind
}

func (v *videoFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	ogTitlePattern       = regexp.MustCompile(`<meta property="og:title" content="([^"]*)"`)
	ogDescriptionPattern = regexp.MustCompile(`<meta property="og:description" content="([^"]*)"`)
)

func videoMetadata(page string) (title, description string) {
	if m := ogTitlePattern.FindStringSubmatch(page); m != nil {
		title = html.UnescapeString(m[1])
	}
	if m := ogDescriptionPattern.FindStringSubmatch(page); m != nil {
		description = html.UnescapeString(m[1])
	}
	return title, description
}
