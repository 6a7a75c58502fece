// Package pipeline implements the per-job state machine that is the
// heart of the transcode worker (spec §4.8): stabilize, copy-in,
// discover, encode-loop, move-out, cleanup.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/armtc/transcoder/internal/backend"
	"github.com/armtc/transcoder/internal/catalog"
	"github.com/armtc/transcoder/internal/command"
	"github.com/armtc/transcoder/internal/config"
	"github.com/armtc/transcoder/internal/ffmpeg"
	"github.com/armtc/transcoder/internal/hwprobe"
	"github.com/armtc/transcoder/internal/logger"
	"github.com/armtc/transcoder/internal/resolver"
	"github.com/armtc/transcoder/internal/stabilizer"
)

// progressFloorStep and progressMinInterval implement the Catalog
// write rate-limit: a progress value is written once the integer floor
// has advanced by at least progressFloorStep since the previous write, or
// once at least progressMinInterval has elapsed since it.
const (
	progressFloorStep   = 5.0
	progressMinInterval = 10 * time.Second
)

// subprocessTimeout bounds a single encoder invocation (spec §5, default
// 10h).
const subprocessTimeout = 10 * time.Hour

// Pipeline runs one job at a time through every step of spec §4.8. A
// Pipeline is not safe for concurrent Run calls against overlapping job
// ids, matching the Worker Loop's single-in-flight contract (spec §4.9).
type Pipeline struct {
	Catalog  *catalog.Catalog
	Resolver *resolver.Resolver
	Prober   *ffmpeg.Prober
	Config   *config.Config
	Caps     hwprobe.Capabilities
	Binaries hwprobe.Binaries
}

// Run executes every step of spec §4.8 for job, from claim through
// unconditional cleanup. An error from a step after the claim is already
// recorded on the job's Catalog row by the time Run returns; a failed
// claim is returned without touching the row.
func (p *Pipeline) Run(ctx context.Context, jobID int64) error {
	job, err := p.claim(jobID)
	if err != nil {
		return err
	}

	workDir := filepath.Join(p.Config.WorkPath, fmt.Sprintf("job-%d", job.ID))
	defer p.cleanupWorkDir(workDir)

	if err := p.run(ctx, job, workDir); err != nil {
		p.fail(job.ID, err)
		return err
	}
	return nil
}

// claim marks the job PROCESSING and sets started_at (spec §4.8 step 1).
// A failed claim aborts without side effects.
func (p *Pipeline) claim(jobID int64) (*catalog.Job, error) {
	job, err := p.Catalog.GetJob(jobID)
	if err != nil {
		return nil, newError(KindNotFound, "claim job %d: %w", jobID, err)
	}
	if job.Status != catalog.StatusPending {
		return nil, newError(KindPrecondition, "job %d is %s, not pending", jobID, job.Status)
	}

	now := time.Now().UTC()
	status := catalog.StatusProcessing
	if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{
		Status:     &status,
		StartedAt:  &now,
		ClearError: true,
	}); err != nil {
		return nil, newError(KindInternal, "claim job %d: %w", jobID, err)
	}

	job.Status = catalog.StatusProcessing
	job.StartedAt = &now
	return job, nil
}

// run executes steps 2-11 of spec §4.8 for an already-claimed job.
func (p *Pipeline) run(ctx context.Context, job *catalog.Job, workDir string) error {
	resolvedSource := p.Resolver.Resolve(job.Title)

	if err := stabilizeSource(ctx, p.Config, resolvedSource); err != nil {
		return err
	}

	video, audio, err := discoverMedia(resolvedSource)
	if err != nil {
		return newError(KindSourceMissing, "discover media under %s: %w", resolvedSource, err)
	}
	if len(video) == 0 && len(audio) == 0 {
		return newError(KindSourceMissing, "no recognized media under %s", resolvedSource)
	}

	if len(video) == 0 {
		return p.runAudioPassthrough(job, resolvedSource, audio)
	}

	videoType := classifyVideoType(job.Title, resolvedSource)
	if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{VideoType: &videoType}); err != nil {
		return newError(KindInternal, "record video type: %w", err)
	}

	localSourceDir := filepath.Join(workDir, "source")
	localOutputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(localSourceDir, 0o755); err != nil {
		return newError(KindInternal, "stage source dir: %w", err)
	}
	if err := os.MkdirAll(localOutputDir, 0o755); err != nil {
		return newError(KindInternal, "stage output dir: %w", err)
	}

	for _, f := range append(append([]mediaFile{}, video...), audio...) {
		dst := filepath.Join(localSourceDir, filepath.Base(f.path))
		if err := copyFile(f.path, dst); err != nil {
			return newError(KindInternal, "stage in %s: %w", f.path, err)
		}
	}

	subdir := p.Config.MoviesSubdir
	if videoType == catalog.VideoTypeTV {
		subdir = p.Config.TVSubdir
	}
	finalOutputDir := filepath.Join(p.Config.CompletedPath, subdir, sanitizeTitle(job.Title))

	if err := p.encodeAll(ctx, job, localSourceDir, localOutputDir); err != nil {
		return err
	}

	if err := p.moveOut(localOutputDir, finalOutputDir); err != nil {
		return newError(KindInternal, "move output into place: %w", err)
	}

	return p.finalize(job, finalOutputDir, resolvedSource)
}

// runAudioPassthrough implements spec §4.8 step 5: audio-only sources are
// copied verbatim into the library, never encoded.
func (p *Pipeline) runAudioPassthrough(job *catalog.Job, resolvedSource string, audio []mediaFile) error {
	destDir := filepath.Join(p.Config.CompletedPath, p.Config.AudioSubdir, sanitizeTitle(job.Title))
	for _, f := range audio {
		dst := filepath.Join(destDir, filepath.Base(f.path))
		if err := copyFile(f.path, dst); err != nil {
			return newError(KindInternal, "copy audio passthrough %s: %w", f.path, err)
		}
	}

	now := time.Now().UTC()
	status := catalog.StatusCompleted
	progress := 100.0
	tracks := len(audio)
	if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{
		Status:      &status,
		Progress:    &progress,
		OutputPath:  &destDir,
		CompletedAt: &now,
		TotalTracks: &tracks,
		ClearError:  true,
	}); err != nil {
		return newError(KindInternal, "finalize audio passthrough: %w", err)
	}

	p.deleteSourceIfEnabled(resolvedSource)
	return nil
}

// encodeAll implements spec §4.8 step 9: re-discover files under the
// local copy, record main_feature_file, and encode each in turn.
func (p *Pipeline) encodeAll(ctx context.Context, job *catalog.Job, localSourceDir, localOutputDir string) error {
	video, audio, err := discoverMedia(localSourceDir)
	if err != nil {
		return newError(KindInternal, "re-discover staged files: %w", err)
	}
	files := append(append([]mediaFile{}, video...), audio...)

	if best, ok := largestFile(files); ok {
		name := filepath.Base(best.path)
		if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{MainFeatureFile: &name}); err != nil {
			return newError(KindInternal, "record main feature file: %w", err)
		}
	}

	selection := backend.Select(p.Config.VideoEncoder, p.Caps)
	n := len(files)
	for i, f := range files {
		floor := float64(i) / float64(n) * 100
		if err := p.encodeOne(ctx, job, selection, f.path, localOutputDir, floor, float64(i+1)/float64(n)*100); err != nil {
			return err
		}
	}
	return nil
}

// encodeOne probes, synthesizes, and spawns the encoder for a single
// file, parsing its live progress stream (spec §4.8 step 9).
func (p *Pipeline) encodeOne(ctx context.Context, job *catalog.Job, selection backend.Selection, src, localOutputDir string, floor, ceiling float64) error {
	outName := stripExt(filepath.Base(src)) + "." + p.Config.OutputExtension
	dst := filepath.Join(localOutputDir, outName)

	var resolution command.Resolution
	var duration time.Duration
	if p.Prober != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		result, err := p.Prober.Probe(probeCtx, src)
		cancel()
		if err == nil {
			resolution = command.Resolution{Width: result.Width, Height: result.Height}
			duration = result.Duration
		}
	}

	tool := p.Binaries.FFmpeg
	if selection.Backend == backend.Handbrake {
		tool = p.Binaries.HandbrakeCLI
	}

	argv, err := command.Build(command.Params{
		Tool:             tool,
		Source:           src,
		Output:           dst,
		Backend:          selection.Backend,
		Family:           selection.Family,
		RequestedEncoder: p.Config.VideoEncoder,
		SourceResolution: resolution,
		Quality:          p.Config.VideoQuality,
		Audio:            command.AudioMode(p.Config.AudioEncoder),
		Subtitle:         command.SubtitleMode(p.Config.SubtitleMode),
		Presets: command.Presets{
			Standard: p.Config.HandbrakePreset,
			FourK:    p.Config.HandbrakePreset4K,
			DVD:      p.Config.HandbrakePresetDVD,
		},
		DeviceNode: p.Binaries.DeviceNode,
	})
	if err != nil {
		return newError(KindValidation, "synthesize command for %s: %w", src, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	pr, pw, err := os.Pipe()
	if err != nil {
		return newError(KindInternal, "attach encoder output for %s: %w", src, err)
	}
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return newError(KindEncoderFailed, "start encoder for %s: %w", src, err)
	}
	pw.Close() // parent's copy; the child holds its own duplicate

	p.trackProgress(job, selection.Backend, pr, duration, floor, ceiling)
	pr.Close()

	if err := cmd.Wait(); err != nil {
		return newError(KindEncoderFailed, "encoder exited for %s: %w", src, err)
	}

	if _, err := os.Stat(dst); err != nil {
		return newError(KindEncoderFailed, "output file missing for %s: %w", src, err)
	}
	return nil
}

// trackProgress reads the encoder's merged output stream line by line,
// translating each progress token into the job's overall percentage
// (floor + per-file fraction * (ceiling-floor)), rate-limited per spec
// §9.
func (p *Pipeline) trackProgress(job *catalog.Job, be backend.Name, stdout io.Reader, duration time.Duration, floor, ceiling float64) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lastWrite := time.Now()
	lastFloor := -1

	for scanner.Scan() {
		fraction, ok := parseProgress(be, scanner.Text(), duration)
		if !ok {
			continue
		}
		overall := floor + (fraction/100)*(ceiling-floor)
		intFloor := int(overall)

		if intFloor-lastFloor < int(progressFloorStep) && time.Since(lastWrite) < progressMinInterval {
			continue
		}

		if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{Progress: floatPtr(overall)}); err != nil {
			logger.Warn("pipeline: progress write failed", "job_id", job.ID, "error", err)
			continue
		}
		lastFloor = intFloor
		lastWrite = time.Now()
	}
}

// moveOut implements spec §4.8 step 10: move each file from the local
// output directory into the final library location.
func (p *Pipeline) moveOut(localOutputDir, finalOutputDir string) error {
	entries, err := os.ReadDir(localOutputDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(localOutputDir, e.Name())
		dst := filepath.Join(finalOutputDir, e.Name())
		if err := moveFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// finalize implements spec §4.8 step 11: mark the job COMPLETED and
// optionally delete the source.
func (p *Pipeline) finalize(job *catalog.Job, finalOutputDir, resolvedSource string) error {
	now := time.Now().UTC()
	status := catalog.StatusCompleted
	progress := 100.0
	if err := p.Catalog.UpdateJob(job.ID, catalog.JobPatch{
		Status:      &status,
		Progress:    &progress,
		OutputPath:  &finalOutputDir,
		CompletedAt: &now,
		ClearError:  true,
	}); err != nil {
		return newError(KindInternal, "finalize job %d: %w", job.ID, err)
	}

	p.deleteSourceIfEnabled(resolvedSource)
	return nil
}

// deleteSourceIfEnabled removes the raw source when delete_source is set
// (spec §4.8 step 11); a failure here is logged but non-fatal.
func (p *Pipeline) deleteSourceIfEnabled(resolvedSource string) {
	if !p.Config.DeleteSource {
		return
	}
	if err := os.RemoveAll(resolvedSource); err != nil {
		logger.Warn("pipeline: failed to delete source after completion", "path", resolvedSource, "error", err)
	}
}

// cleanupWorkDir implements spec §4.8 step 12: the local scratch
// directory is removed regardless of success or failure.
func (p *Pipeline) cleanupWorkDir(workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("pipeline: failed to clean up work directory", "path", workDir, "error", err)
	}
}

// fail records a pipeline error onto the job's Catalog row, classifying
// it via the Kind taxonomy (spec §7).
func (p *Pipeline) fail(jobID int64, err error) {
	now := time.Now().UTC()
	status := catalog.StatusFailed
	msg := err.Error()
	kind := string(classify(err))
	if updateErr := p.Catalog.UpdateJob(jobID, catalog.JobPatch{
		Status:      &status,
		Error:       &msg,
		ErrorKind:   &kind,
		CompletedAt: &now,
	}); updateErr != nil {
		logger.Error("pipeline: failed to record job failure", "job_id", jobID, "error", updateErr)
	}
}

// stabilizerHardTimeout is the hard ceiling on a single stabilize wait
// (spec §5, default 3600s); unlike stabilize_seconds this is not
// independently configurable.
const stabilizerHardTimeout = time.Hour

// stabilizeSource wraps the Stabilizer with the job's configured window
// (spec §4.8 step 3). Kept as a package variable so tests can swap in a
// faster implementation without a full Pipeline.
var stabilizeSource = func(ctx context.Context, cfg *config.Config, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return newError(KindSourceMissing, "resolved source %s does not exist: %w", dir, err)
		}
		return newError(KindInternal, "stat %s: %w", dir, err)
	}

	opts := stabilizer.Options{
		StabilizeWindow: time.Duration(cfg.StabilizeSeconds) * time.Second,
		HardTimeout:     stabilizerHardTimeout,
	}
	if err := stabilizer.Wait(ctx, dir, opts); err != nil {
		if err == stabilizer.ErrTimeout {
			return newError(KindStabilizerTimeout, "source %s did not stabilize: %w", dir, err)
		}
		return newError(KindInternal, "stabilize %s: %w", dir, err)
	}
	return nil
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

func floatPtr(v float64) *float64 { return &v }
