// Package gemini implements the analysis workflow using Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxnote/voxnote-api/internal/analysis"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/retry"
	"google.golang.org/genai"
)

// basePrompt instructs the model to derive the structured artifacts from
// the uploaded transcript document.
const basePrompt = `You are given the transcript of a recorded conversation as an attached document.
Produce a JSON object with exactly these fields:
  "summary": a concise summary of the conversation,
  "key_points": an array of the most important points discussed,
  "action_items": an array of concrete follow-up actions,
  "sentiment": one word describing the overall tone.
Respond with JSON only.`

// Analyzer implements analysis.Executor using the Gemini API. The merged
// transcript is uploaded through the Files API and the generation request
// references the uploaded document, mirroring the upload-then-invoke shape
// of the workflow service.
type Analyzer struct {
	logger *slog.Logger
	client *genai.Client
	model  string
	policy retry.Policy
}

// NewAnalyzer creates an Analyzer with the provided dependencies.
func NewAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.AnalysisConfig, maxRetries int) (*Analyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", analysis.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", analysis.ErrInvalidConfig, err)
	}

	return &Analyzer{
		logger: logger,
		client: client,
		model:  cfg.ModelName,
		policy: retry.Policy{MaxRetries: maxRetries},
	}, nil
}

// Run uploads the transcript and invokes the workflow with the document
// reference. Transient remote failures are retried with backoff; a result
// whose sub-fields are missing comes back with those fields empty rather
// than as an error, so persistence of the transcript still proceeds.
func (a *Analyzer) Run(ctx context.Context, jobID int64, transcript string, params analysis.Params) (*analysis.Result, error) {
	log := a.logger.With("job_id", jobID)

	var doc *genai.File
	err := retry.Do(ctx, a.policy, retry.ClassifyRemote, func(ctx context.Context) error {
		file, err := a.client.Files.Upload(ctx, strings.NewReader(transcript), &genai.UploadFileConfig{
			MIMEType:    "text/plain",
			DisplayName: fmt.Sprintf("transcript-job-%d", jobID),
		})
		if err != nil {
			return &retry.RemoteError{Op: "upload transcript", StatusCode: 0, Message: err.Error()}
		}
		doc = file
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript upload failed: %w", err)
	}

	log.Debug("transcript uploaded for analysis", "document", doc.Name)

	prompt := basePrompt
	if params.Prompt != "" {
		prompt += "\n\nAdditional instructions from the requester:\n" + params.Prompt
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(doc.URI, doc.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	var raw string
	err = retry.Do(ctx, a.policy, retry.ClassifyRemote, func(ctx context.Context) error {
		resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
		if err != nil {
			return &retry.RemoteError{Op: "run workflow", StatusCode: 0, Message: err.Error()}
		}
		if resp == nil || len(resp.Candidates) == 0 {
			return fmt.Errorf("%w: no candidates generated", analysis.ErrInvalidResponse)
		}
		raw = resp.Text()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analysis workflow failed: %w", err)
	}

	result := parseWorkflowOutput(raw)

	log.Info("analysis workflow completed",
		"summary_length", len(result.Summary),
		"key_points", len(result.KeyPoints),
		"action_items", len(result.ActionItems))

	return result, nil
}
