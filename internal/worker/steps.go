package worker

import (
	"context"
	"fmt"

	"app/internal/model"
	"app/internal/pipeline"
	"app/internal/provider"
)

const defaultResolution = "1080x1920"

// executeStep runs one attempt of a pipeline step, mutating the job in place.
// Per-scene steps skip scenes that already have output, so a retried attempt
// resumes where the last one stopped.
func (w *Worker) executeStep(ctx context.Context, job *model.Job, niche *model.Niche, step pipeline.StepDef) error {
	switch step.Status {
	case model.JobIdeaGeneration:
		return w.stepIdea(ctx, job, niche)
	case model.JobScriptGeneration:
		return w.stepScript(ctx, job, niche)
	case model.JobSceneBreakdown:
		return w.stepScenes(ctx, job, niche)
	case model.JobImageGeneration:
		return w.stepImages(ctx, job)
	case model.JobVideoGeneration:
		return w.stepVideos(ctx, job)
	case model.JobAudioSelection:
		return w.stepAudio(ctx, job, niche)
	case model.JobTextOverlay:
		return w.stepOverlays(ctx, job)
	case model.JobVideoAssembly:
		return w.stepAssembly(ctx, job)
	case model.JobPlatformFormatting:
		return w.stepFormat(ctx, job)
	case model.JobExporting:
		return w.stepExport(ctx, job)
	}
	return fmt.Errorf("no executor for step %s", step.Status)
}

func (w *Worker) stepIdea(ctx context.Context, job *model.Job, niche *model.Niche) error {
	topic := job.Options.CustomTopic
	if topic == "" {
		topic = w.picker.PickTopic(niche, job.Options.ExcludeTopics)
	}
	style := job.Options.VisualStyle
	if style == "" {
		style = w.picker.PickVisualStyle(niche)
	}
	req := provider.IdeaRequest{
		NicheID:     niche.ID,
		Prompt:      niche.Prompts.Idea.UserPromptTemplate,
		Topic:       topic,
		Hook:        w.picker.PickHook(niche),
		VisualStyle: style,
		CustomTopic: job.Options.CustomTopic,
		Exclusions:  job.Options.ExcludeTopics,
	}
	idea, err := w.adapter.GenerateIdea(ctx, req)
	if err != nil {
		return err
	}
	job.Idea = idea

	// Persist the usage counters the picks bumped so anti-repetition holds
	// across jobs. Best effort; a lost touch only weakens variety.
	if err := w.nicheRepo.TouchPools(ctx, niche.ID, niche.Pools); err != nil {
		w.logger.Warn().Err(err).Str("niche_id", niche.ID).Msg("Failed to persist pool usage counters")
	}
	return nil
}

func (w *Worker) stepScript(ctx context.Context, job *model.Job, niche *model.Niche) error {
	duration := job.Options.Duration
	if duration == 0 {
		if cfg, ok := niche.Platforms[job.Platform]; ok && cfg.Duration.Max > 0 {
			duration = cfg.Duration.Max
		} else {
			duration = niche.AverageDuration
		}
	}
	script, err := w.adapter.GenerateScript(ctx, provider.ScriptRequest{
		Prompt:   niche.Prompts.Script.UserPromptTemplate,
		Idea:     *job.Idea,
		Duration: duration,
		CTA:      w.picker.PickCTA(niche),
	})
	if err != nil {
		return err
	}
	job.Script = script
	return nil
}

func (w *Worker) stepScenes(ctx context.Context, job *model.Job, niche *model.Niche) error {
	sceneCount := int(job.Script.TotalDuration / 5)
	if sceneCount < 1 {
		sceneCount = 1
	}
	scenes, err := w.adapter.BreakdownScenes(ctx, provider.SceneRequest{
		Prompt:     niche.Prompts.Image.UserPromptTemplate,
		Script:     *job.Script,
		SceneCount: sceneCount,
	})
	if err != nil {
		return err
	}
	if len(scenes) == 0 {
		return &provider.Error{StatusCode: 422, Body: "scene breakdown returned no scenes"}
	}
	for i := range scenes {
		scenes[i].SceneNumber = i + 1
		scenes[i].Status = model.ScenePending
	}
	job.Scenes = scenes
	return nil
}

// stepImages renders a still per scene. A recoverable error aborts the attempt
// so the step's retry budget applies; an unrecoverable one fails just that
// scene. The step itself fails only when no scene survives.
func (w *Worker) stepImages(ctx context.Context, job *model.Job) error {
	resolution := job.Options.Resolution
	if resolution == "" {
		resolution = defaultResolution
	}
	style := ""
	if job.Idea != nil {
		style = job.Idea.VisualStyle
	}
	for i := range job.Scenes {
		sc := &job.Scenes[i]
		if sc.Status == model.SceneFailed || sc.ImageURL != "" {
			continue
		}
		sc.Status = model.SceneProcessing
		prompt := sc.ImagePrompt
		if prompt == "" {
			prompt = sc.VisualDescription
		}
		url, err := w.adapter.GenerateImage(ctx, prompt, style, resolution)
		if err != nil {
			if provider.IsRecoverable(err) {
				sc.Status = model.ScenePending
				return err
			}
			sc.Status = model.SceneFailed
			sc.Error = err.Error()
			continue
		}
		sc.ImageURL = url
	}
	return failIfAllScenesFailed(job.Scenes)
}

// stepVideos animates each rendered still into a clip. Scenes complete here;
// the same recoverable/unrecoverable split as stepImages applies.
func (w *Worker) stepVideos(ctx context.Context, job *model.Job) error {
	for i := range job.Scenes {
		sc := &job.Scenes[i]
		if sc.Status == model.SceneFailed || sc.VideoURL != "" {
			continue
		}
		sc.Status = model.SceneProcessing
		url, err := w.adapter.GenerateVideo(ctx, sc.ImageURL, sc.VideoPrompt, sc.Duration)
		if err != nil {
			if provider.IsRecoverable(err) {
				sc.Status = model.ScenePending
				return err
			}
			sc.Status = model.SceneFailed
			sc.Error = err.Error()
			continue
		}
		sc.VideoURL = url
		sc.Status = model.SceneCompleted
	}
	return failIfAllScenesFailed(job.Scenes)
}

func (w *Worker) stepAudio(ctx context.Context, job *model.Job, niche *model.Niche) error {
	var total float64
	for _, sc := range job.Scenes {
		if sc.Status == model.SceneCompleted {
			total += sc.Duration
		}
	}
	url, err := w.adapter.SelectAudio(ctx, w.picker.PickMusicMood(niche), total)
	if err != nil {
		return err
	}
	job.AudioURL = url
	return nil
}

func (w *Worker) stepOverlays(ctx context.Context, job *model.Job) error {
	scenes, err := w.adapter.RenderOverlays(ctx, completedScenes(job.Scenes))
	if err != nil {
		return err
	}
	merged := mergeScenes(job.Scenes, scenes)
	job.Scenes = merged
	return nil
}

func (w *Worker) stepAssembly(ctx context.Context, job *model.Job) error {
	title := ""
	if job.Script != nil {
		title = job.Script.Title
	}
	url, err := w.adapter.AssembleVideo(ctx, provider.AssembleRequest{
		Scenes:   completedScenes(job.Scenes),
		AudioURL: job.AudioURL,
		Title:    title,
	})
	if err != nil {
		return err
	}
	job.FinalVideoURL = url
	return nil
}

func (w *Worker) stepFormat(ctx context.Context, job *model.Job) error {
	url, err := w.adapter.FormatForPlatform(ctx, job.FinalVideoURL, job.Platform)
	if err != nil {
		return err
	}
	job.FinalVideoURL = url
	return nil
}

func (w *Worker) stepExport(ctx context.Context, job *model.Job) error {
	key, err := w.store.Upload(ctx, job.ID, job.FinalVideoURL)
	if err != nil {
		return err
	}
	job.ExportURL = key
	return nil
}

func completedScenes(scenes []model.Scene) []model.Scene {
	out := make([]model.Scene, 0, len(scenes))
	for _, sc := range scenes {
		if sc.Status == model.SceneCompleted {
			out = append(out, sc)
		}
	}
	return out
}

// mergeScenes replaces the matching scenes with their overlaid versions,
// keeping failed scenes untouched.
func mergeScenes(all, updated []model.Scene) []model.Scene {
	byNum := make(map[int]model.Scene, len(updated))
	for _, sc := range updated {
		byNum[sc.SceneNumber] = sc
	}
	for i, sc := range all {
		if up, ok := byNum[sc.SceneNumber]; ok {
			all[i] = up
		}
	}
	return all
}

func failIfAllScenesFailed(scenes []model.Scene) error {
	for _, sc := range scenes {
		if sc.Status != model.SceneFailed {
			return nil
		}
	}
	return &provider.Error{StatusCode: 422, Body: "all scenes failed"}
}
