package normalizer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"switchboard/internal/config"
	"switchboard/internal/ledger"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/stage"
)

// Target audio format for transcription input.
const (
	targetSampleRate = 16000
	targetChannels   = 1
	targetBitDepth   = 16
)

// commandRunner executes an external command. Tests substitute it to avoid
// depending on an ffmpeg install.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Normalizer converts discovered recordings into the canonical audio format
// the transcription service expects.
type Normalizer struct {
	cfg    *config.Config
	logger *slog.Logger
	run    commandRunner
}

// New constructs a normalizer stage adapter.
func New(cfg *config.Config, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "normalizer"),
		run:    runCommand,
	}
}

// SetCommandRunner replaces the external command executor. Intended for tests.
func (n *Normalizer) SetCommandRunner(run commandRunner) { n.run = run }

// Prepare checks the source recording exists and carries audio data.
func (n *Normalizer) Prepare(_ context.Context, entry *ledger.Entry) error {
	info, err := os.Stat(entry.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrInvalidInput, ledger.StageNormalize, "prepare", "source recording missing: "+entry.SourcePath, err)
		}
		// Anything else (permissions, a flaky mount) may clear up on retry.
		return services.Wrap(services.ErrTransient, ledger.StageNormalize, "prepare", "source recording unreadable: "+entry.SourcePath, err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrInvalidInput, ledger.StageNormalize, "prepare", "source recording is empty: "+entry.SourcePath, nil)
	}
	return nil
}

// Execute produces a 16 kHz mono 16-bit WAV in the staging directory and
// records its path on the entry. A source already in the target format is
// copied through without invoking ffmpeg.
func (n *Normalizer) Execute(ctx context.Context, entry *ledger.Entry) error {
	logger := logging.FromContext(ctx, n.logger)
	outPath := filepath.Join(n.cfg.Paths.StagingDir, entry.Identity+".wav")

	if alreadyNormalized(entry.SourcePath) {
		if err := copyFile(entry.SourcePath, outPath); err != nil {
			return services.Wrap(services.ErrTransient, ledger.StageNormalize, "copy", "stage pass-through copy failed", err)
		}
		entry.NormalizedFile = outPath
		logger.Debug("recording already in target format", logging.String("path", entry.SourcePath))
		return nil
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", entry.SourcePath,
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-ac", fmt.Sprintf("%d", targetChannels),
		"-sample_fmt", "s16",
		outPath,
	}
	output, err := n.run(ctx, n.cfg.FFmpegBinary(), args...)
	if err != nil {
		os.Remove(outPath)
		detail := fmt.Sprintf("ffmpeg failed: %s", firstLine(output))
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTransient, ledger.StageNormalize, "convert", detail, err)
		}
		// ffmpeg rejecting the input means the recording itself is bad.
		return services.Wrap(services.ErrInvalidInput, ledger.StageNormalize, "convert", detail, err)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return services.Wrap(services.ErrTransient, ledger.StageNormalize, "convert", "ffmpeg produced no output", err)
	}

	entry.NormalizedFile = outPath
	logger.Info("recording normalized",
		logging.String(logging.FieldIdentity, entry.Identity),
		logging.String("normalized_file", outPath),
		logging.Int64("bytes", info.Size()),
	)
	return nil
}

// HealthCheck verifies ffmpeg is resolvable on PATH.
func (n *Normalizer) HealthCheck(_ context.Context) stage.Health {
	if _, err := exec.LookPath(n.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy("normalizer", "ffmpeg not found on PATH")
	}
	return stage.Healthy("normalizer")
}

// alreadyNormalized reports whether the file is a PCM WAV already matching
// the target sample rate, channel count, and bit depth. Parse failures mean
// "not normalized" so conversion handles the authoritative answer.
func alreadyNormalized(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 36)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" || string(header[12:16]) != "fmt " {
		return false
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	channels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	return audioFormat == 1 &&
		channels == targetChannels &&
		sampleRate == targetSampleRate &&
		bitsPerSample == targetBitDepth
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func firstLine(output []byte) string {
	for i, b := range output {
		if b == '\n' {
			return string(output[:i])
		}
	}
	if len(output) == 0 {
		return "no output"
	}
	return string(output)
}
