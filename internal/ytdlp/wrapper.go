// Package ytdlp implements the Downloader Wrapper: it owns all
// knowledge of the yt-dlp/ffmpeg child-process protocol, translating a
// small options record into an argument vector and turning the child's
// textual stdout protocol into structured progress events.
//
// Callers never see a yt-dlp version quirk; the two operations here,
// Download and ExtractInfo, have contracts stable across downloader
// versions.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/pkg/bytesize"
)

// Options carries the recognized yt-dlp option names.
// Zero values are omitted from the built argument vector.
type Options struct {
	OutputTemplate              string
	Format                      string
	MergeOutputFormat           string
	FFmpegLocation              string
	NoPlaylist                  bool
	ExtractAudio                bool
	AudioFormat                 string
	PostprocessorArgs           map[string][]string // muxer name -> flat arg list
	ConcurrentFragmentDownloads int
	Overwrites                  bool
	IsResume                    bool

	// ExtractInfo-only passthroughs.
	ExtractFlat bool
}

const defaultFragmentRetries = 10

// ProgressEvent is the normalized shape handed to a ProgressCallback. It
// is the wrapper's running, combined view across every fragment observed
// so far: DownloadedBytes/TotalBytes/Percent are sums across all
// fragments, not per-fragment values.
type ProgressEvent struct {
	Status          string // "downloading", "finished" or "postprocessing"
	Filename        string
	FragmentType    string // "video" or "audio"; informational only
	DownloadedBytes int64
	TotalBytes      int64
	Percent         float64
	SpeedBytesPerS  int64
	ETASeconds      int
}

// ProgressCallback receives progress events during Download. Returning a
// non-nil error aborts the in-flight child process; if the error wraps
// models.ErrPausedByUser, Download returns that sentinel untouched so the
// caller can tell a cooperative cancel apart from a failure. Any other
// error is treated as an unexpected abort and surfaced as-is.
type ProgressCallback func(ProgressEvent) error

// Wrapper owns the paths to the two externally-managed binaries.
type Wrapper struct {
	DownloaderPath string
	MuxerPath      string
	Logger         *slog.Logger
}

// NewWrapper constructs a Wrapper. logger may be nil, in which case
// slog.Default() is used.
func NewWrapper(downloaderPath, muxerPath string, logger *slog.Logger) *Wrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrapper{DownloaderPath: downloaderPath, MuxerPath: muxerPath, Logger: logger}
}

// Download runs the downloader against url, reporting progress through
// progress. ok reports success and message carries the failure text; err is
// non-nil for an error returned by the progress callback (e.g.
// models.ErrPausedByUser or models.ErrShutdownRequested), passed through
// unchanged, or for an unexpected process-launch failure.
func (w *Wrapper) Download(ctx context.Context, url string, opts Options, progress ProgressCallback) (ok bool, message string, err error) {
	args := w.buildDownloadArgs(url, opts)

	cmd := exec.CommandContext(ctx, w.DownloaderPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, "", fmt.Errorf("opening stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return false, "", fmt.Errorf("starting downloader: %w", err)
	}

	tracker := newFragmentTracker()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pauseErr error
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		event, emitted := tracker.handleLine(line)
		if !emitted {
			continue
		}

		if cbErr := progress(event); cbErr != nil {
			pauseErr = cbErr
			_ = cmd.Process.Kill()
			break
		}
	}

	waitErr := cmd.Wait()

	if pauseErr != nil {
		return false, "", pauseErr
	}

	if waitErr != nil {
		exitCode := -1
		var exitError *exec.ExitError
		if errors.As(waitErr, &exitError) {
			exitCode = exitError.ExitCode()
		}
		msg := fmt.Sprintf("exit code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
		w.Logger.Warn("downloader exited non-zero", "exit_code", exitCode, "stderr", stderr.String())
		return false, msg, nil
	}

	return true, "download complete", nil
}

// buildDownloadArgs translates Options into the downloader's CLI argument
// vector.
func (w *Wrapper) buildDownloadArgs(url string, opts Options) []string {
	var args []string

	if opts.OutputTemplate != "" {
		args = append(args, "--output", opts.OutputTemplate)
	}
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	if opts.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeOutputFormat)
	}

	ffmpegLocation := opts.FFmpegLocation
	if ffmpegLocation == "" {
		ffmpegLocation = w.MuxerPath
	}
	if ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", ffmpegLocation)
	}

	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	}

	if opts.ExtractAudio {
		args = append(args, "--extract-audio")
		if opts.AudioFormat != "" {
			args = append(args, "--audio-format", opts.AudioFormat)
		}
	}

	if ffmpegArgs, ok := opts.PostprocessorArgs["ffmpeg"]; ok {
		args = append(args, foldPostprocessorArgs(ffmpegArgs)...)
	}

	if opts.ConcurrentFragmentDownloads > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(opts.ConcurrentFragmentDownloads))
	}

	if opts.Overwrites && !opts.IsResume {
		args = append(args, "--force-overwrites")
	}

	args = append(args, "--continue")
	args = append(args, "--fragment-retries", strconv.Itoa(defaultFragmentRetries))
	args = append(args, "--no-warnings")

	args = append(args, url)
	return args
}

// foldPostprocessorArgs pairs consecutive entries into "key value" strings,
// each passed as its own --postprocessor-args flag value; a trailing
// singleton is passed alone.
func foldPostprocessorArgs(ffmpegArgs []string) []string {
	var out []string
	i := 0
	for i < len(ffmpegArgs) {
		if i+1 < len(ffmpegArgs) {
			out = append(out, "--postprocessor-args", fmt.Sprintf("ffmpeg:%s %s", ffmpegArgs[i], ffmpegArgs[i+1]))
			i += 2
		} else {
			out = append(out, "--postprocessor-args", fmt.Sprintf("ffmpeg:%s", ffmpegArgs[i]))
			i++
		}
	}
	return out
}

// Info is the metadata returned by ExtractInfo. A playlist info object has
// Type == "playlist" and a non-empty Entries slice; a single-video object
// leaves Entries nil.
type Info struct {
	Type             string       `json:"_type"`
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Uploader         string       `json:"uploader"`
	Channel          string       `json:"channel"`
	Duration         float64      `json:"duration"`
	Thumbnail        string       `json:"thumbnail"`
	WebpageURL       string       `json:"webpage_url"`
	RequestedFormats []FormatInfo `json:"requested_formats"`
	Formats          []FormatInfo `json:"formats"`
	Entries          []Info       `json:"entries"`

	// Flat-playlist dump lines describe their parent playlist on each
	// entry; ExtractInfo lifts these onto the synthesized parent Info.
	PlaylistID       string `json:"playlist_id"`
	PlaylistTitle    string `json:"playlist_title"`
	PlaylistUploader string `json:"playlist_uploader"`
}

// FormatInfo is one entry of yt-dlp's format list, used to estimate byte
// sizes ahead of the download.
type FormatInfo struct {
	FormatID        string  `json:"format_id"`
	Ext             string  `json:"ext"`
	Vcodec          string  `json:"vcodec"`
	Acodec          string  `json:"acodec"`
	Filesize        int64   `json:"filesize"`
	FilesizeApprox  float64 `json:"filesize_approx"`
}

// Bytes returns Filesize if present, else the approximate size.
func (f FormatInfo) Bytes() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return int64(f.FilesizeApprox)
}

// ExtractInfo runs the downloader in JSON-dump mode. ctx should normally
// carry a deadline; if it expires before output is produced, ExtractInfo
// returns (nil, models.ErrExtractInfoTimeout).
func (w *Wrapper) ExtractInfo(ctx context.Context, url string, opts Options) (*Info, error) {
	args := []string{"--dump-json", "--no-warnings"}
	if opts.ExtractFlat {
		args = append(args, "--flat-playlist")
	}
	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, w.DownloaderPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, models.ErrExtractInfoTimeout
	}
	if err != nil {
		w.Logger.Warn("extract_info failed", "error", err, "stderr", stderr.String())
		return nil, fmt.Errorf("extract_info: %w", err)
	}

	lines := splitNonEmptyLines(stdout.String())
	if len(lines) == 0 {
		return nil, fmt.Errorf("extract_info: no output")
	}

	if len(lines) == 1 {
		var info Info
		if err := json.Unmarshal([]byte(lines[0]), &info); err != nil {
			return nil, fmt.Errorf("extract_info: decoding json: %w", err)
		}
		return &info, nil
	}

	entries := make([]Info, 0, len(lines))
	for _, line := range lines {
		var entry Info
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("extract_info: no decodable entries")
	}
	parent := &Info{Type: "playlist", Entries: entries}
	parent.ID = entries[0].PlaylistID
	parent.Title = entries[0].PlaylistTitle
	parent.Uploader = entries[0].PlaylistUploader
	return parent, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// destinationPattern matches "[download] Destination: <path>".
var destinationPattern = regexp.MustCompile(`^\[download\] Destination:\s*(.+)$`)

// progressLinePattern matches
// "[download]  45.2% of 10.5MiB at 2.3MiB/s ETA 00:03" with speed/ETA optional.
var progressLinePattern = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%\s+of\s+~?([\d.]+)(\w+)` +
		`(?:\s+at\s+([\d.]+)(\w+)/s)?` +
		`(?:\s+ETA\s+([\d:]+))?`,
)

// postprocessingPattern matches the muxer/converter banner lines yt-dlp
// prints once all streams have finished downloading, e.g.
// "[Merger] Merging formats into ..." or "[ExtractAudio] Destination: ...".
var postprocessingPattern = regexp.MustCompile(`^\[(Merger|ExtractAudio|VideoConvertor|FixupM[A-Za-z0-9]+)\]`)

type fragment struct {
	filename string
	total    int64
	downloaded int64
	fragType string
}

type fragmentTracker struct {
	fragments  []*fragment
	current    *fragment
	lastEvent  ProgressEvent
	haveLast   bool
}

func newFragmentTracker() *fragmentTracker {
	return &fragmentTracker{}
}

// handleLine parses one line of yt-dlp stdout. It returns a combined
// ProgressEvent and whether it should be emitted (duplicates are
// suppressed).
func (t *fragmentTracker) handleLine(line string) (ProgressEvent, bool) {
	if m := destinationPattern.FindStringSubmatch(line); m != nil {
		filename := m[1]
		t.current = &fragment{filename: filename, fragType: classifyFragmentByOrder(len(t.fragments))}
		t.fragments = append(t.fragments, t.current)
		return ProgressEvent{}, false
	}

	if m := progressLinePattern.FindStringSubmatch(line); m != nil && t.current != nil {
		percent, _ := strconv.ParseFloat(m[1], 64)
		totalValue, _ := strconv.ParseFloat(m[2], 64)
		totalUnit := m[3]
		totalBytes := convertToBytes(totalValue, totalUnit)

		if t.current.total == 0 {
			t.current.total = totalBytes
		}
		downloaded := int64(float64(t.current.total) * percent / 100)
		if downloaded > t.current.total {
			downloaded = t.current.total
		}
		t.current.downloaded = downloaded

		var speed int64
		if m[4] != "" && m[5] != "" {
			speedValue, _ := strconv.ParseFloat(m[4], 64)
			speed = convertToBytes(speedValue, m[5])
		}
		eta := 0
		if m[6] != "" {
			eta = parseETA(m[6])
		}

		// yt-dlp's closing "[download] 100% of ... in ..." line is the
		// fragment's completion signal, not another progress tick.
		if percent >= 100 {
			t.current.downloaded = t.current.total
			return ProgressEvent{
				Status:       "finished",
				Filename:     t.current.filename,
				FragmentType: t.current.fragType,
			}, true
		}

		var sumTotal, sumDownloaded int64
		for _, f := range t.fragments {
			sumTotal += f.total
			sumDownloaded += f.downloaded
		}
		if sumTotal == 0 {
			return ProgressEvent{}, false
		}
		pct := float64(sumDownloaded) * 100 / float64(sumTotal)
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}

		event := ProgressEvent{
			Status:          "downloading",
			Filename:        t.current.filename,
			FragmentType:    t.current.fragType,
			DownloadedBytes: sumDownloaded,
			TotalBytes:      sumTotal,
			Percent:         pct,
			SpeedBytesPerS:  speed,
			ETASeconds:      eta,
		}

		if t.haveLast && event == t.lastEvent {
			return ProgressEvent{}, false
		}
		t.lastEvent = event
		t.haveLast = true
		return event, true
	}

	if strings.HasPrefix(line, "[download] 100%") && t.current != nil {
		event := ProgressEvent{
			Status:   "finished",
			Filename: t.current.filename,
		}
		return event, true
	}

	if postprocessingPattern.MatchString(line) {
		return ProgressEvent{Status: "postprocessing"}, true
	}

	return ProgressEvent{}, false
}

// classifyFragmentByOrder classifies a fragment by its position among the
// fragments seen so far for this download: the first fragment is assumed to
// be the video stream, the second (and any further) the audio stream.
// yt-dlp's filename format-code prefix is not a reliable signal (it isn't
// guaranteed present), so order-of-arrival is used instead of guessing
// from name substrings.
func classifyFragmentByOrder(index int) string {
	if index == 0 {
		return "video"
	}
	return "audio"
}

// convertToBytes converts a numeric size with unit to bytes
// (KiB/MiB/GiB/TiB = 1024-base, KB/MB/GB/TB = 1000-base).
func convertToBytes(value float64, unit string) int64 {
	return bytesize.ParseUnit(value, unit).Int64()
}

func parseETA(s string) int {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		m, _ := strconv.Atoi(parts[0])
		sec, _ := strconv.Atoi(parts[1])
		return m*60 + sec
	case 3:
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		sec, _ := strconv.Atoi(parts[2])
		return h*3600 + m*60 + sec
	default:
		return 0
	}
}
