package chat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/tools"
	"go.uber.org/zap"
)

// Result is one completed run's reply, as ordered presentation
// segments.
type Result struct {
	Segments []string
}

// Text joins the reply segments for single-string surfaces.
func (r *Result) Text() string {
	return strings.Join(r.Segments, "\n\n")
}

// RunFailure reports a run that reached a terminal state other than
// completed, carrying the remote-reported reason.
type RunFailure struct {
	RunID  string
	Status string
	Reason string
}

func (e *RunFailure) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
	}
	return fmt.Sprintf("run %s ended with status %s: %s", e.RunID, e.Status, e.Reason)
}

// DriverConfig bounds the polling loops.
type DriverConfig struct {
	// PollInterval is the backoff between run status fetches.
	PollInterval time.Duration
	// CancelPollInterval is the tighter backoff used while waiting
	// for a preempted run to confirm cancellation.
	CancelPollInterval time.Duration
	// Timeout caps one Execute call end to end; a run that never
	// reaches a terminal state fails rather than blocking forever.
	Timeout time.Duration
	// FileDir receives materialized image and file attachments.
	FileDir string
}

func (c *DriverConfig) withDefaults() DriverConfig {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	if out.CancelPollInterval <= 0 {
		out.CancelPollInterval = 500 * time.Millisecond
	}
	if out.Timeout <= 0 {
		out.Timeout = 2 * time.Minute
	}
	return out
}

// Driver takes a thread and an assistant and drives one run to a
// terminal state: preempting stale runs, polling, dispatching tool
// calls, and extracting the reply.
type Driver struct {
	client   provider.Client
	registry *tools.Registry
	config   DriverConfig
	logger   *zap.Logger
	locks    *keyedMutex
}

func NewDriver(client provider.Client, registry *tools.Registry, config DriverConfig, logger *zap.Logger) *Driver {
	return &Driver{
		client:   client,
		registry: registry,
		config:   config.withDefaults(),
		logger:   logger,
		locks:    newKeyedMutex(),
	}
}

// Execute submits the message on the thread and drives a new run of
// assistantID to completion. The per-thread lock plus stale-run
// preemption guarantee at most one active run per thread, even under
// concurrent requests for the same user.
func (d *Driver) Execute(ctx context.Context, threadID, assistantID, message string) (*Result, error) {
	unlock := d.locks.Lock(threadID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	if err := d.preempt(ctx, threadID); err != nil {
		return nil, err
	}

	if err := d.client.AddUserMessage(ctx, threadID, message); err != nil {
		return nil, fmt.Errorf("submit message: %w", err)
	}

	run, err := d.client.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	d.logger.Info("Started run",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
		zap.String("assistant_id", assistantID))

	return d.drive(ctx, threadID, run)
}

// preempt cancels any non-terminal run already on the thread and
// waits for it to settle. A stale run racing the new one would
// interleave responses on the same conversation.
func (d *Driver) preempt(ctx context.Context, threadID string) error {
	stale, found, err := d.client.LatestRun(ctx, threadID)
	if err != nil {
		return fmt.Errorf("inspect thread for active run: %w", err)
	}
	if !found || stale.Terminal() {
		return nil
	}

	d.logger.Warn("Preempting stale run",
		zap.String("thread_id", threadID),
		zap.String("run_id", stale.ID),
		zap.String("status", string(stale.Status)))

	if stale.Status != openai.RunStatusCancelling {
		if _, err := d.client.CancelRun(ctx, threadID, stale.ID); err != nil {
			// The run may have gone terminal between the list and the
			// cancel; confirm via polling below either way.
			d.logger.Warn("Cancel request failed, polling for terminal state",
				zap.String("run_id", stale.ID),
				zap.Error(err))
		}
	}

	for {
		if err := sleepCtx(ctx, d.config.CancelPollInterval); err != nil {
			return fmt.Errorf("waiting for stale run %s to settle: %w", stale.ID, err)
		}
		current, err := d.client.RetrieveRun(ctx, threadID, stale.ID)
		if err != nil {
			return fmt.Errorf("confirm cancellation of run %s: %w", stale.ID, err)
		}
		if current.Terminal() {
			d.logger.Info("Stale run settled",
				zap.String("run_id", stale.ID),
				zap.String("status", string(current.Status)))
			return nil
		}
	}
}

// drive polls the run through its state machine until it is terminal,
// dispatching tool calls along the way.
func (d *Driver) drive(ctx context.Context, threadID string, run provider.Run) (*Result, error) {
	for {
		switch {
		case run.Active():
			if err := sleepCtx(ctx, d.config.PollInterval); err != nil {
				return nil, fmt.Errorf("run %s did not finish: %w", run.ID, err)
			}
			next, err := d.refetch(ctx, threadID, run.ID)
			if err != nil {
				return nil, err
			}
			run = next

		case run.Status == openai.RunStatusRequiresAction:
			next, err := d.dispatchTools(ctx, threadID, run)
			if err != nil {
				return nil, err
			}
			run = next

		case run.Status == openai.RunStatusCompleted:
			return d.extractReply(ctx, threadID, run.ID)

		default:
			return nil, &RunFailure{
				RunID:  run.ID,
				Status: string(run.Status),
				Reason: run.LastError,
			}
		}
	}
}

// refetch prefers the cheap list-latest query but tolerates it
// returning some other run (another request may already have started
// one) by falling back to a point lookup.
func (d *Driver) refetch(ctx context.Context, threadID, runID string) (provider.Run, error) {
	latest, found, err := d.client.LatestRun(ctx, threadID)
	if err == nil && found && latest.ID == runID {
		return latest, nil
	}
	if err != nil {
		d.logger.Warn("Listing runs failed, retrieving directly",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	run, err := d.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return provider.Run{}, fmt.Errorf("poll run %s: %w", runID, err)
	}
	return run, nil
}

// dispatchTools answers every pending tool call in one batch. The
// registry guarantees a string output per call, so a failing or
// unknown tool cannot stall the run.
func (d *Driver) dispatchTools(ctx context.Context, threadID string, run provider.Run) (provider.Run, error) {
	outputs := make([]provider.ToolOutput, 0, len(run.ToolCalls))
	for _, call := range run.ToolCalls {
		d.logger.Info("Dispatching tool call",
			zap.String("run_id", run.ID),
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID))
		outputs = append(outputs, provider.ToolOutput{
			ToolCallID: call.ID,
			Output:     d.registry.Invoke(ctx, call.Name, call.Arguments),
		})
	}

	next, err := d.client.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
	if err != nil {
		return provider.Run{}, fmt.Errorf("submit tool outputs for run %s: %w", run.ID, err)
	}
	return next, nil
}

// extractReply locates the newest assistant message authored by this
// run (not merely the newest message on the thread), strips each
// annotation's literal span from the text, and materializes file and
// image segments to local files with placeholder references.
func (d *Driver) extractReply(ctx context.Context, threadID, runID string) (*Result, error) {
	messages, err := d.client.RunMessages(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch reply for run %s: %w", runID, err)
	}

	for _, msg := range messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		result := &Result{}
		for _, segment := range msg.Segments {
			switch segment.Type {
			case provider.SegmentText:
				text := segment.Text
				for _, annotation := range segment.Annotations {
					text = strings.ReplaceAll(text, annotation.Text, "")
				}
				result.Segments = append(result.Segments, text)

			case provider.SegmentImage:
				placeholder, err := d.materialize(ctx, segment.FileID)
				if err != nil {
					d.logger.Error("Failed to materialize attachment",
						zap.String("file_id", segment.FileID),
						zap.Error(err))
					placeholder = fmt.Sprintf("[attachment %s unavailable]", segment.FileID)
				}
				result.Segments = append(result.Segments, placeholder)
			}
		}
		return result, nil
	}

	// Completed run with no assistant reply: treat as an empty reply
	// rather than an error.
	d.logger.Warn("Completed run produced no assistant message",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID))
	return &Result{}, nil
}

// materialize downloads the file into the driver's scoped directory
// and returns a placeholder reference for the reply text.
func (d *Driver) materialize(ctx context.Context, fileID string) (string, error) {
	content, err := d.client.FileContent(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer content.Close()

	dir := d.config.FileDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fileID+".png")
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("[image: %s]", path), nil
}

// sleepCtx is a cancellable backoff wait.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
