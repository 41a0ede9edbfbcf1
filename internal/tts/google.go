// Package tts speaks the Google Cloud Text-to-Speech REST protocol.
//
// Request and response bodies are the v1 texttospeechpb messages encoded
// with protojson, so user text is always escaped by a real JSON encoder.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

const (
	// DefaultEndpoint is the v1 synthesize method.
	DefaultEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

	// fallbackGender is sent with a named voice when no gender is known.
	fallbackGender = "FEMALE"

	// maxResponseBytes bounds the response read; a minute of 24kHz LINEAR16
	// is under 4 MB base64.
	maxResponseBytes = 64 << 20

	// maxErrorBodyBytes bounds the response body kept in transport errors.
	maxErrorBodyBytes = 1024
)

var (
	// ErrTransport is returned for network failures and non-2xx responses.
	ErrTransport = errors.New("tts transport failed")
	// ErrInvalidVoice is returned for an unknown SSML gender name.
	ErrInvalidVoice = errors.New("invalid voice selection")
	// ErrInvalidEncoding is returned for an unknown audio encoding name.
	ErrInvalidEncoding = errors.New("invalid audio encoding")
)

// VoiceSettings selects the voice.
type VoiceSettings struct {
	LanguageCode string
	VoiceName    string
	SSMLGender   string
}

// AudioSettings selects the returned audio format.
type AudioSettings struct {
	Encoding        string
	SampleRateHertz int
}

// BuildRequestBody encodes a synthesize request for text.
//
// gender overrides voice.SSMLGender for this request. When a voice name is
// configured the gender is always sent, defaulting to FEMALE. Without a name
// the gender is sent only if one is known.
func BuildRequestBody(text, gender string, voice VoiceSettings, audioCfg AudioSettings) ([]byte, error) {
	if gender == "" {
		gender = voice.SSMLGender
	}

	params := &texttospeechpb.VoiceSelectionParams{LanguageCode: voice.LanguageCode}
	switch {
	case voice.VoiceName != "":
		if gender == "" {
			gender = fallbackGender
		}
		g, err := parseGender(gender)
		if err != nil {
			return nil, err
		}
		params.Name = voice.VoiceName
		params.SsmlGender = g
	case gender != "":
		g, err := parseGender(gender)
		if err != nil {
			return nil, err
		}
		params.SsmlGender = g
	}

	enc, ok := texttospeechpb.AudioEncoding_value[strings.ToUpper(audioCfg.Encoding)]
	if !ok || enc == int32(texttospeechpb.AudioEncoding_AUDIO_ENCODING_UNSPECIFIED) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEncoding, audioCfg.Encoding)
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: params,
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding(enc),
			SampleRateHertz: int32(audioCfg.SampleRateHertz),
		},
	}

	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode synthesize request: %w", err)
	}
	return body, nil
}

// ValidGender reports whether name is an SSML gender the API accepts.
func ValidGender(name string) bool {
	_, err := parseGender(name)
	return err == nil
}

func parseGender(name string) (texttospeechpb.SsmlVoiceGender, error) {
	v, ok := texttospeechpb.SsmlVoiceGender_value[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown SSML gender %q", ErrInvalidVoice, name)
	}
	return texttospeechpb.SsmlVoiceGender(v), nil
}

// ParseResponse extracts the decoded audioContent bytes from a synthesize
// response body.
func ParseResponse(body []byte) ([]byte, error) {
	var resp texttospeechpb.SynthesizeSpeechResponse
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", audio.ErrDecode, err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, fmt.Errorf("%w: response has no audioContent", audio.ErrDecode)
	}
	return resp.GetAudioContent(), nil
}

// Client posts synthesize requests over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. An empty endpoint selects DefaultEndpoint and a
// nil httpClient selects http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Call posts body with apiKey as the "key" query parameter and returns the
// response body.
func (c *Client) Call(ctx context.Context, body []byte, apiKey string) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", ErrTransport, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// url.Error repeats the URL, which carries the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := respBody
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		c.logger.Error("tts request rejected",
			"status", resp.StatusCode,
			"response_body", string(snippet),
		)
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, resp.StatusCode, snippet)
	}

	c.logger.Debug("tts response received", "status", resp.StatusCode, "bytes", len(respBody))
	return respBody, nil
}
