// Package provider is the client for the media generation service that
// performs the per-step AI work. The worker drives it one pipeline step at a
// time so each step can be retried and checkpointed independently.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"app/internal/model"

	"github.com/rs/zerolog"
)

// Error is a failed provider call. Recoverable reports whether retrying may
// succeed: server-side and transport failures are recoverable, rejected
// requests are not.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Recoverable reports whether the call may succeed on retry.
func (e *Error) Recoverable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRecoverable classifies any error from an Adapter call. Transport errors
// and timeouts count as recoverable.
func IsRecoverable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Recoverable()
	}
	return true
}

// IdeaRequest carries the randomized creative inputs for idea generation.
type IdeaRequest struct {
	NicheID     string   `json:"niche_id"`
	Prompt      string   `json:"prompt"`
	Topic       string   `json:"topic"`
	Hook        string   `json:"hook"`
	VisualStyle string   `json:"visual_style,omitempty"`
	CustomTopic string   `json:"custom_topic,omitempty"`
	Exclusions  []string `json:"exclusions,omitempty"`
}

// ScriptRequest asks for a narration script of roughly Duration seconds.
type ScriptRequest struct {
	Prompt   string              `json:"prompt"`
	Idea     model.GeneratedIdea `json:"idea"`
	Duration int                 `json:"duration"`
	CTA      string              `json:"cta,omitempty"`
}

// SceneRequest breaks a script into scenes of about five seconds each.
type SceneRequest struct {
	Prompt     string                `json:"prompt"`
	Script     model.GeneratedScript `json:"script"`
	SceneCount int                   `json:"scene_count"`
}

// AssembleRequest stitches rendered scenes, audio, and overlays into one
// video file.
type AssembleRequest struct {
	Scenes   []model.Scene `json:"scenes"`
	AudioURL string        `json:"audio_url"`
	Title    string        `json:"title"`
}

// Adapter is the per-step interface the worker executes the pipeline against.
type Adapter interface {
	GenerateIdea(ctx context.Context, req IdeaRequest) (*model.GeneratedIdea, error)
	GenerateScript(ctx context.Context, req ScriptRequest) (*model.GeneratedScript, error)
	BreakdownScenes(ctx context.Context, req SceneRequest) ([]model.Scene, error)
	// GenerateImage returns the URL of a rendered still for one scene.
	GenerateImage(ctx context.Context, prompt, style, resolution string) (string, error)
	// GenerateVideo animates a scene still into a clip of the given duration.
	GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec float64) (string, error)
	// SelectAudio picks a licensed track matching the mood and total duration.
	SelectAudio(ctx context.Context, mood string, durationSec float64) (string, error)
	// RenderOverlays burns text overlays into each scene clip.
	RenderOverlays(ctx context.Context, scenes []model.Scene) ([]model.Scene, error)
	AssembleVideo(ctx context.Context, req AssembleRequest) (string, error)
	// FormatForPlatform reframes and re-encodes for the target platform specs.
	FormatForPlatform(ctx context.Context, videoURL string, platform model.Platform) (string, error)
}

type httpAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPAdapter creates an Adapter talking to the generation service at
// baseURL. An empty apiKey sends unauthenticated requests. No client timeout
// is set; per-step deadlines come from the caller's context.
func NewHTTPAdapter(baseURL, apiKey string, logger zerolog.Logger) Adapter {
	return &httpAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
		logger:  logger.With().Str("service", "ProviderClient").Logger(),
	}
}

// post sends a JSON request and decodes the JSON response into out.
func (c *httpAdapter) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("making request to generation service: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			c.logger.Warn().Err(readErr).Int("status_code", resp.StatusCode).Msg("Failed to read error body from generation service")
			return &Error{StatusCode: resp.StatusCode}
		}
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("error_body", string(bodyBytes)).
			Str("path", path).
			Msg("Generation service returned error")
		return &Error{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *httpAdapter) GenerateIdea(ctx context.Context, req IdeaRequest) (*model.GeneratedIdea, error) {
	var idea model.GeneratedIdea
	if err := c.post(ctx, "/generate/idea", req, &idea); err != nil {
		return nil, err
	}
	return &idea, nil
}

func (c *httpAdapter) GenerateScript(ctx context.Context, req ScriptRequest) (*model.GeneratedScript, error) {
	var script model.GeneratedScript
	if err := c.post(ctx, "/generate/script", req, &script); err != nil {
		return nil, err
	}
	return &script, nil
}

func (c *httpAdapter) BreakdownScenes(ctx context.Context, req SceneRequest) ([]model.Scene, error) {
	var resp struct {
		Scenes []model.Scene `json:"scenes"`
	}
	if err := c.post(ctx, "/generate/scenes", req, &resp); err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}

func (c *httpAdapter) GenerateImage(ctx context.Context, prompt, style, resolution string) (string, error) {
	req := map[string]string{"prompt": prompt, "style": style, "resolution": resolution}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/generate/image", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpAdapter) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec float64) (string, error) {
	req := map[string]any{"image_url": imageURL, "prompt": prompt, "duration": durationSec}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/generate/video", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpAdapter) SelectAudio(ctx context.Context, mood string, durationSec float64) (string, error) {
	req := map[string]any{"mood": mood, "duration": durationSec}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/audio/select", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpAdapter) RenderOverlays(ctx context.Context, scenes []model.Scene) ([]model.Scene, error) {
	req := map[string]any{"scenes": scenes}
	var resp struct {
		Scenes []model.Scene `json:"scenes"`
	}
	if err := c.post(ctx, "/render/overlays", req, &resp); err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}

func (c *httpAdapter) AssembleVideo(ctx context.Context, req AssembleRequest) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/render/assemble", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpAdapter) FormatForPlatform(ctx context.Context, videoURL string, platform model.Platform) (string, error) {
	req := map[string]any{"video_url": videoURL, "platform": platform}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/render/format", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}
