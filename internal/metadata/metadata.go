// Package metadata implements the Metadata Fetcher: a thin wrapper
// over the Downloader Wrapper's info-extraction call that normalizes the
// result into the Task's Metadata snapshot.
package metadata

import (
	"context"

	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

// Fetcher fetches and normalizes per-video metadata.
type Fetcher struct {
	wrapper *ytdlp.Wrapper
}

// New wraps a Downloader Wrapper.
func New(wrapper *ytdlp.Wrapper) *Fetcher {
	return &Fetcher{wrapper: wrapper}
}

// Fetch extracts info for url and returns the normalized Metadata
// snapshot: placeholder title/uploader sentinels substituted, and
// estimated video/audio byte sizes derived from the format list.
func (f *Fetcher) Fetch(ctx context.Context, url string) (models.Metadata, error) {
	info, err := f.wrapper.ExtractInfo(ctx, url, ytdlp.Options{NoPlaylist: true})
	if err != nil {
		return models.Metadata{}, err
	}
	return FromInfo(info), nil
}

// FetchPlaylist extracts playlist-level metadata for url: the playlist's
// title, uploader, and entry count, with the "PlayList" sentinel title
// when the playlist carries none.
func (f *Fetcher) FetchPlaylist(ctx context.Context, url string) (models.Metadata, error) {
	info, err := f.wrapper.ExtractInfo(ctx, url, ytdlp.Options{ExtractFlat: true})
	if err != nil {
		return models.Metadata{}, err
	}
	return FromInfo(info), nil
}

// FromInfo normalizes a raw extract-info result into a Metadata
// snapshot, handling both the single-video and playlist shapes.
func FromInfo(info *ytdlp.Info) models.Metadata {
	if info.Type == "playlist" || len(info.Entries) > 0 {
		m := models.Metadata{
			Title:      info.Title,
			Uploader:   info.Uploader,
			VideoID:    info.ID,
			IsPlaylist: true,
			VideoCount: len(info.Entries),
		}
		if m.Uploader == "" && info.Channel != "" {
			m.Uploader = info.Channel
		}
		return m.WithDefaults()
	}

	videoBytes, audioBytes := estimateSizes(info)

	m := models.Metadata{
		Title:              info.Title,
		Uploader:           info.Uploader,
		Duration:           int64(info.Duration),
		ThumbnailURL:       info.Thumbnail,
		VideoID:            info.ID,
		WebpageURL:         info.WebpageURL,
		EstimatedVideoSize: videoBytes,
		EstimatedAudioSize: audioBytes,
	}
	if info.Uploader == "" && info.Channel != "" {
		m.Uploader = info.Channel
	}

	return m.WithDefaults()
}

// estimateSizes derives the expected video and audio stream sizes.
// RequestedFormats (the formats yt-dlp actually selected for this
// run) are authoritative when present; otherwise it falls back to the
// largest video-only and audio-only entries in the full format list,
// so a missing per-format size never zeroes the estimate.
func estimateSizes(info *ytdlp.Info) (videoBytes, audioBytes int64) {
	if len(info.RequestedFormats) > 0 {
		for _, fmtInfo := range info.RequestedFormats {
			switch {
			case fmtInfo.Vcodec != "" && fmtInfo.Vcodec != "none":
				if b := fmtInfo.Bytes(); b > videoBytes {
					videoBytes = b
				}
			case fmtInfo.Acodec != "" && fmtInfo.Acodec != "none":
				if b := fmtInfo.Bytes(); b > audioBytes {
					audioBytes = b
				}
			}
		}
		return videoBytes, audioBytes
	}

	for _, fmtInfo := range info.Formats {
		isVideo := fmtInfo.Vcodec != "" && fmtInfo.Vcodec != "none"
		isAudio := fmtInfo.Acodec != "" && fmtInfo.Acodec != "none"
		b := fmtInfo.Bytes()
		switch {
		case isVideo && !isAudio:
			if b > videoBytes {
				videoBytes = b
			}
		case isAudio && !isVideo:
			if b > audioBytes {
				audioBytes = b
			}
		}
	}
	return videoBytes, audioBytes
}
