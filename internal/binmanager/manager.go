// Package binmanager implements the Binary Manager: it keeps the
// downloader (yt-dlp) and muxer (ffmpeg) executables present under the
// per-user bin directory, checking a GitHub releases feed for newer
// builds no more than once per BinariesConfig.CheckInterval.
package binmanager

import (
	"archive/tar"
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ulikunitz/xz"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/httpclient"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/jmylchreest/tvget/internal/util"
)

// ProgressCallback reports cumulative bytes transferred for one binary's
// download. total is 0 when the upstream response carried no
// Content-Length.
type ProgressCallback func(name models.BinaryName, downloaded, total int64)

// CancelFunc is polled between chunks; returning true aborts the current
// download and removes any partial file.
type CancelFunc func() bool

// UpdateInfo reports a binary's installed and upstream versions.
type UpdateInfo struct {
	Current string
	Latest  string
}

// ffmpegAssetSuffix is the release asset BtbN/FFmpeg-Builds publishes for
// the current platform; only the two shapes the upstream project ships
// are recognized (zip on Windows, tar.xz elsewhere).
func ffmpegAssetSuffix() string {
	if runtime.GOOS == "windows" {
		return "win64-gpl.zip"
	}
	return "linux64-gpl.tar.xz"
}

func downloaderAssetName() string {
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

func binaryFileName(name models.BinaryName) string {
	base := "yt-dlp"
	if name == models.BinaryMuxer {
		base = "ffmpeg"
	}
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

// release mirrors the subset of the GitHub releases API this manager
// reads: tag_name for yt-dlp's standard tags, published_at for
// BtbN/FFmpeg-Builds' floating "latest" tag.
type release struct {
	TagName     string `json:"tag_name"`
	PublishedAt string `json:"published_at"`
	Assets      []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

func (r *release) versionFor(name models.BinaryName) string {
	if name == models.BinaryDownloader {
		return strings.TrimPrefix(r.TagName, "v")
	}
	if len(r.PublishedAt) >= 10 {
		return strings.ReplaceAll(r.PublishedAt[:10], "-", ".")
	}
	return strings.TrimPrefix(r.TagName, "v")
}

func (r *release) assetURL(name models.BinaryName) (string, bool) {
	if name == models.BinaryDownloader {
		for _, a := range r.Assets {
			if a.Name == downloaderAssetName() {
				return a.BrowserDownloadURL, true
			}
		}
		return "", false
	}
	suffix := ffmpegAssetSuffix()
	for _, a := range r.Assets {
		if strings.Contains(a.Name, suffix) {
			return a.BrowserDownloadURL, true
		}
	}
	return "", false
}

// Manager owns the lifecycle of the two managed binaries.
type Manager struct {
	store      *store.BinaryVersionStore
	http       *httpclient.Client
	cfg        config.BinariesConfig
	binDir     string
	logger     *slog.Logger
	apiBaseURL string
}

// githubAPIBaseURL is the production release-feed host; tests override it
// via WithAPIBaseURL to point at a local fixture server instead.
const githubAPIBaseURL = "https://api.github.com"

// New constructs a Manager rooted at binDir, backed by versions and a
// shared httpclient.Client.
func New(versions *store.BinaryVersionStore, binDir string, cfg config.BinariesConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Logger = logger
	httpCfg.UserAgent = "tvget-binmanager/1.0"
	return &Manager{
		store:      versions,
		http:       httpclient.New(httpCfg),
		cfg:        cfg,
		binDir:     binDir,
		logger:     logger,
		apiBaseURL: githubAPIBaseURL,
	}
}

// WithAPIBaseURL overrides the release-feed host, for tests.
func (m *Manager) WithAPIBaseURL(base string) *Manager {
	m.apiBaseURL = base
	return m
}

func (m *Manager) repoFor(name models.BinaryName) string {
	if name == models.BinaryDownloader {
		return m.cfg.DownloaderRepo
	}
	return m.cfg.MuxerRepo
}

func (m *Manager) path(name models.BinaryName) string {
	return filepath.Join(m.binDir, binaryFileName(name))
}

// YtdlpPath returns the absolute path to the installed downloader, or
// ("", false) if it has not been installed yet.
func (m *Manager) YtdlpPath() (string, bool) {
	return m.resolvedPath(models.BinaryDownloader)
}

// FfmpegPath returns the absolute path to the installed muxer, or
// ("", false) if it has not been installed yet.
func (m *Manager) FfmpegPath() (string, bool) {
	return m.resolvedPath(models.BinaryMuxer)
}

func (m *Manager) resolvedPath(name models.BinaryName) (string, bool) {
	path := m.path(name)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	// Fall back to an operator-supplied binary before reporting missing,
	// so a pinned system yt-dlp/ffmpeg is honored ahead of one this
	// manager would otherwise have to fetch itself.
	if path, err := util.FindBinary(binaryFileName(name), envVarFor(name)); err == nil {
		return path, true
	}
	return "", false
}

func envVarFor(name models.BinaryName) string {
	if name == models.BinaryDownloader {
		return "TVGET_YTDLP_PATH"
	}
	return "TVGET_FFMPEG_PATH"
}

// EnsurePresent runs the first-run flow for any binary not yet installed,
// fetching upstream metadata, downloading, and installing it. Binaries
// already present are left untouched.
func (m *Manager) EnsurePresent(ctx context.Context, progress ProgressCallback, cancel CancelFunc) (bool, error) {
	if err := os.MkdirAll(m.binDir, 0750); err != nil {
		return false, fmt.Errorf("creating bin directory: %w", err)
	}

	var missing []models.BinaryName
	for _, name := range []models.BinaryName{models.BinaryDownloader, models.BinaryMuxer} {
		if _, ok := m.resolvedPath(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return true, nil
	}
	return m.install(ctx, missing, progress, cancel)
}

// CheckUpdates compares each installed binary's recorded version against
// upstream, but only if more than CheckInterval has elapsed since the
// last check. It returns only entries whose local version differs from
// upstream.
func (m *Manager) CheckUpdates(ctx context.Context) (map[models.BinaryName]UpdateInfo, error) {
	names := []models.BinaryName{models.BinaryDownloader, models.BinaryMuxer}

	due, err := m.dueForCheck(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return map[models.BinaryName]UpdateInfo{}, nil
	}

	updates := make(map[models.BinaryName]UpdateInfo)
	for _, name := range due {
		rel, err := m.fetchLatestRelease(ctx, name)
		if err != nil {
			m.logger.Warn("checking for binary update failed", "binary", name, "error", err)
			continue
		}
		latest := rel.versionFor(name)

		current, err := m.store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading recorded version for %s: %w", name, err)
		}
		currentVersion := ""
		if current != nil {
			currentVersion = current.Version
		}

		if err := m.store.TouchLastCheck(ctx, name); err != nil {
			return nil, fmt.Errorf("recording check time for %s: %w", name, err)
		}

		if currentVersion != latest {
			updates[name] = UpdateInfo{Current: currentVersion, Latest: latest}
		}
	}
	return updates, nil
}

func (m *Manager) dueForCheck(ctx context.Context, names []models.BinaryName) ([]models.BinaryName, error) {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	var due []models.BinaryName
	for _, name := range names {
		recorded, err := m.store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading recorded version for %s: %w", name, err)
		}
		if recorded == nil || time.Since(recorded.LastCheck) > interval {
			due = append(due, name)
		}
	}
	return due, nil
}

// Update re-runs the fetch-and-install flow for subset.
func (m *Manager) Update(ctx context.Context, subset []models.BinaryName, progress ProgressCallback, cancel CancelFunc) (bool, error) {
	if len(subset) == 0 {
		return true, nil
	}
	return m.install(ctx, subset, progress, cancel)
}

func (m *Manager) install(ctx context.Context, names []models.BinaryName, progress ProgressCallback, cancel CancelFunc) (bool, error) {
	for _, name := range names {
		ok, err := m.installOne(ctx, name, progress, cancel)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) installOne(ctx context.Context, name models.BinaryName, progress ProgressCallback, cancel CancelFunc) (bool, error) {
	rel, err := m.fetchLatestRelease(ctx, name)
	if err != nil {
		return false, fmt.Errorf("fetching release metadata for %s: %w", name, err)
	}
	url, ok := rel.assetURL(name)
	if !ok {
		return false, fmt.Errorf("no matching release asset for %s on %s/%s", name, runtime.GOOS, runtime.GOARCH)
	}
	version := rel.versionFor(name)

	finalPath := m.path(name)
	tmpPath := finalPath + ".tmp"

	ok, err = m.downloadFile(ctx, url, tmpPath, func(downloaded, total int64) {
		if progress != nil {
			progress(name, downloaded, total)
		}
	}, cancel)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if name == models.BinaryMuxer {
		if err := extractMuxer(tmpPath, finalPath); err != nil {
			_ = os.Remove(tmpPath)
			return false, fmt.Errorf("extracting muxer archive: %w", err)
		}
	} else {
		if err := os.Rename(tmpPath, finalPath); err != nil {
			_ = os.Remove(tmpPath)
			return false, fmt.Errorf("installing %s: %w", name, err)
		}
		if err := os.Chmod(finalPath, 0750); err != nil {
			return false, fmt.Errorf("marking %s executable: %w", name, err)
		}
	}

	if err := m.store.Set(ctx, name, version); err != nil {
		return false, fmt.Errorf("recording installed version for %s: %w", name, err)
	}
	m.logger.Info("binary installed", "binary", name, "version", version)
	return true, nil
}

func (m *Manager) fetchLatestRelease(ctx context.Context, name models.BinaryName) (*release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", m.apiBaseURL, m.repoFor(name))
	resp, err := m.http.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release metadata: %w", err)
	}
	return &rel, nil
}

// downloadFile streams url into dest+".tmp"-style path, polling cancel
// between chunks and removing any partial file on cancellation or
// error.
func (m *Manager) downloadFile(ctx context.Context, url, dest string, progress func(downloaded, total int64), cancel CancelFunc) (bool, error) {
	if cancel != nil && cancel() {
		return false, nil
	}

	resp, err := m.http.Get(ctx, url)
	if err != nil {
		return false, fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return false, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, url)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", dest, err)
	}

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	var downloaded int64
	total := resp.ContentLength

	for {
		if cancel != nil && cancel() {
			out.Close()
			_ = os.Remove(dest)
			return false, nil
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				_ = os.Remove(dest)
				return false, fmt.Errorf("writing %s: %w", dest, writeErr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			_ = os.Remove(dest)
			return false, fmt.Errorf("reading response body: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return false, fmt.Errorf("closing %s: %w", dest, err)
	}
	return true, nil
}

// extractMuxer pulls the ffmpeg executable out of the downloaded archive
// and installs it at finalPath, handling both release shapes
// BtbN/FFmpeg-Builds publishes.
func extractMuxer(archivePath, finalPath string) error {
	if ffmpegAssetSuffix() == "win64-gpl.zip" {
		return extractFromZip(archivePath, finalPath)
	}
	return extractFromTarXz(archivePath, finalPath)
}

func extractFromZip(archivePath, finalPath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer r.Close()
	defer os.Remove(archivePath)

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, "bin/ffmpeg.exe") && !strings.HasSuffix(f.Name, "ffmpeg.exe") {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening archive entry %s: %w", f.Name, err)
		}
		defer src.Close()
		return writeExecutable(src, finalPath)
	}
	return fmt.Errorf("ffmpeg.exe not found in archive")
}

func extractFromTarXz(archivePath, finalPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	defer os.Remove(archivePath)

	xzr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating xz reader: %w", err)
	}

	tr := tar.NewReader(xzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if !strings.HasSuffix(hdr.Name, "bin/ffmpeg") && !strings.HasSuffix(hdr.Name, "/ffmpeg") {
			continue
		}
		return writeExecutable(tr, finalPath)
	}
	return fmt.Errorf("ffmpeg not found in archive")
}

func writeExecutable(src io.Reader, finalPath string) error {
	tmp := finalPath + ".extract"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0750)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("extracting to %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0750); err != nil {
		return fmt.Errorf("marking %s executable: %w", tmp, err)
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		return fmt.Errorf("installing %s: %w", finalPath, err)
	}
	return nil
}

// StartPeriodicCheck schedules CheckUpdates as a recurring `@every`
// cron job at the configured CheckInterval. Found updates are only
// logged; installing them is left to an explicit
// `tvget bin update`. The returned *cron.Cron must be stopped by the
// caller at shutdown.
func (m *Manager) StartPeriodicCheck(ctx context.Context) *cron.Cron {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		updates, err := m.CheckUpdates(ctx)
		if err != nil {
			m.logger.Warn("periodic binary update check failed", "error", err)
			return
		}
		for name, info := range updates {
			m.logger.Info("binary update available", "binary", name, "current", info.Current, "latest", info.Latest)
		}
	})
	if err != nil {
		m.logger.Error("failed to schedule periodic binary update check", "error", err)
		return c
	}
	c.Start()
	return c
}
