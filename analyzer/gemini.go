package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"celeb-dna-collector/dna"
)

const baseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

var (
	// ErrNotFound reports a frame path that does not resolve. It matches
	// fs.ErrNotExist as well.
	ErrNotFound = errors.New("frame not found")
	// ErrProcessing reports a failed API call or a response that could not
	// be decoded into a Sample.
	ErrProcessing = errors.New("frame analysis failed")
)

// Analyzer extracts a Makeup DNA sample from a single frame image.
type Analyzer interface {
	Analyze(ctx context.Context, framePath, subjectName string) (*dna.Sample, error)
}

type geminiAnalyzer struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
}

// NewAnalyzer creates an Analyzer backed by the Gemini API.
func NewAnalyzer(apiKey, model string, client *http.Client) Analyzer {
	return newAnalyzerWithURL(apiKey, model, client, baseURL)
}

// newAnalyzerWithURL creates an Analyzer with a custom base URL for testing.
func newAnalyzerWithURL(apiKey, model string, client *http.Client, url string) Analyzer {
	if model == "" {
		model = DefaultModel
	}
	return &geminiAnalyzer{
		apiKey:  apiKey,
		model:   model,
		client:  client,
		baseURL: url,
	}
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *geminiAnalyzer) Analyze(ctx context.Context, framePath, subjectName string) (*dna.Sample, error) {
	image, err := os.ReadFile(framePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, framePath, err)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrProcessing, framePath, err)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: fmt.Sprintf(makeupDNAPrompt, subjectName)},
				{InlineData: &geminiInlineData{
					MimeType: mimeType(framePath),
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %w", ErrProcessing, err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrProcessing, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling Gemini API for %s: %w", ErrProcessing, framePath, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrProcessing, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: Gemini API returned status %d: %s", ErrProcessing, resp.StatusCode, string(respBody))
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return nil, fmt.Errorf("%w: parsing Gemini response: %w", ErrProcessing, err)
	}

	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response from Gemini API", ErrProcessing)
	}

	text := stripMarkdownCodeBlock(gemResp.Candidates[0].Content.Parts[0].Text)

	sample, err := dna.ParseSample([]byte(text))
	if err != nil {
		slog.Warn("failed to parse Gemini JSON response", "frame", framePath, "error", err, "text", truncate(text, 500))
		return nil, fmt.Errorf("%w: parsing sample JSON for %s: %w", ErrProcessing, framePath, err)
	}

	return sample, nil
}

// mimeType maps a frame extension to the MIME type Gemini expects.
func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// stripMarkdownCodeBlock removes markdown code block wrappers from text.
// Gemini may wrap JSON responses in ```json ... ``` blocks.
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence (possibly with language tag)
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		// Remove closing fence
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
