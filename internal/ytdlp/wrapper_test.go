package ytdlp

import "testing"

func TestConvertToBytes_BinaryUnits(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  int64
	}{
		{10.5, "MiB", int64(10.5 * 1024 * 1024)},
		{1, "KiB", 1024},
		{1, "GiB", 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		if got := convertToBytes(tt.value, tt.unit); got != tt.want {
			t.Fatalf("convertToBytes(%v, %q) = %d, want %d", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestConvertToBytes_DecimalUnits(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  int64
	}{
		{1, "KB", 1000},
		{1, "MB", 1000 * 1000},
		{1, "GB", 1000 * 1000 * 1000},
	}
	for _, tt := range tests {
		if got := convertToBytes(tt.value, tt.unit); got != tt.want {
			t.Fatalf("convertToBytes(%v, %q) = %d, want %d", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestParseETA(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:03", 3},
		{"01:23", 83},
		{"01:23:45", 5025},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseETA(tt.in); got != tt.want {
			t.Fatalf("parseETA(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFoldPostprocessorArgs_Pairs(t *testing.T) {
	got := foldPostprocessorArgs([]string{"-af", "loudnorm=I=-14:TP=-1"})
	want := []string{"--postprocessor-args", "ffmpeg:-af loudnorm=I=-14:TP=-1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFoldPostprocessorArgs_TrailingSingleton(t *testing.T) {
	got := foldPostprocessorArgs([]string{"-af", "loudnorm", "-vn"})
	want := []string{
		"--postprocessor-args", "ffmpeg:-af loudnorm",
		"--postprocessor-args", "ffmpeg:-vn",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuildDownloadArgs_OverwritesOmittedOnResume(t *testing.T) {
	w := &Wrapper{DownloaderPath: "yt-dlp", MuxerPath: "/opt/ffmpeg"}
	args := w.buildDownloadArgs("https://www.youtube.com/watch?v=abc", Options{
		Overwrites: true,
		IsResume:   true,
	})
	for _, a := range args {
		if a == "--force-overwrites" {
			t.Fatalf("force-overwrites must be omitted when is_resume is set, got args: %v", args)
		}
	}
}

func TestBuildDownloadArgs_FFmpegLocationFallsBackToWrapper(t *testing.T) {
	w := &Wrapper{DownloaderPath: "yt-dlp", MuxerPath: "/opt/ffmpeg"}
	args := w.buildDownloadArgs("https://www.youtube.com/watch?v=abc", Options{})

	found := false
	for i, a := range args {
		if a == "--ffmpeg-location" && i+1 < len(args) && args[i+1] == "/opt/ffmpeg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --ffmpeg-location /opt/ffmpeg in args: %v", args)
	}
}

func TestBuildDownloadArgs_ConcurrentFragmentDownloads(t *testing.T) {
	w := &Wrapper{DownloaderPath: "yt-dlp"}
	args := w.buildDownloadArgs("https://www.youtube.com/watch?v=abc", Options{
		ConcurrentFragmentDownloads: 6,
	})

	found := false
	for i, a := range args {
		if a == "--concurrent-fragments" && i+1 < len(args) && args[i+1] == "6" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --concurrent-fragments 6 in args: %v", args)
	}
}

func TestBuildDownloadArgs_ConcurrentFragmentDownloadsOmittedWhenZero(t *testing.T) {
	w := &Wrapper{DownloaderPath: "yt-dlp"}
	args := w.buildDownloadArgs("https://www.youtube.com/watch?v=abc", Options{})

	for _, a := range args {
		if a == "--concurrent-fragments" {
			t.Fatalf("expected --concurrent-fragments to be omitted, got args: %v", args)
		}
	}
}

func TestBuildDownloadArgs_AlwaysAppendsContinueAndRetries(t *testing.T) {
	w := &Wrapper{DownloaderPath: "yt-dlp"}
	args := w.buildDownloadArgs("https://www.youtube.com/watch?v=abc", Options{})

	wantFlags := []string{"--continue", "--fragment-retries", "--no-warnings"}
	for _, want := range wantFlags {
		found := false
		for _, a := range args {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected %q in args: %v", want, args)
		}
	}
}

func TestFragmentTracker_CombinedProgress(t *testing.T) {
	tracker := newFragmentTracker()

	if _, emitted := tracker.handleLine("[download] Destination: video.f137.mp4"); emitted {
		t.Fatalf("destination line should not itself emit a progress event")
	}

	event, emitted := tracker.handleLine("[download]  50.0% of 10.0MiB at 1.0MiB/s ETA 00:05")
	if !emitted {
		t.Fatalf("expected a progress event")
	}
	if event.Percent != 50 {
		t.Fatalf("expected 50%%, got %v", event.Percent)
	}
	wantBytes := int64(10.0 * 1024 * 1024 * 0.5)
	if event.DownloadedBytes != wantBytes {
		t.Fatalf("expected %d downloaded bytes, got %d", wantBytes, event.DownloadedBytes)
	}

	// Identical event should be suppressed.
	if _, emitted := tracker.handleLine("[download]  50.0% of 10.0MiB at 1.0MiB/s ETA 00:05"); emitted {
		t.Fatalf("duplicate identical event must be suppressed")
	}
}

func TestFragmentTracker_MultiFragmentSum(t *testing.T) {
	tracker := newFragmentTracker()

	tracker.handleLine("[download] Destination: video.f137.mp4")
	first, emitted := tracker.handleLine("[download] 100% of 4.00MiB in 00:04")
	if !emitted {
		t.Fatalf("expected the closing 100%% line to emit an event")
	}
	if first.Status != "finished" {
		t.Fatalf("expected finished event for the closing 100%% line, got %q", first.Status)
	}
	if first.Filename != "video.f137.mp4" {
		t.Fatalf("expected finished event to name the fragment, got %q", first.Filename)
	}

	tracker.handleLine("[download] Destination: audio.f140.m4a")
	second, emitted := tracker.handleLine("[download]  50.0% of 6.0MiB at 1.0MiB/s")
	if !emitted {
		t.Fatalf("expected event for second fragment")
	}
	wantTotal := int64(4*1024*1024 + 6*1024*1024)
	if second.TotalBytes != wantTotal {
		t.Fatalf("expected combined total %d, got %d", wantTotal, second.TotalBytes)
	}
	wantDownloaded := int64(4*1024*1024 + 3*1024*1024)
	if second.DownloadedBytes != wantDownloaded {
		t.Fatalf("expected combined downloaded %d, got %d", wantDownloaded, second.DownloadedBytes)
	}
}

func TestFragmentTracker_NeverExceeds100Percent(t *testing.T) {
	tracker := newFragmentTracker()
	tracker.handleLine("[download] Destination: video.f137.mp4")
	tracker.handleLine("[download]  99.9% of 4.0MiB at 1.0MiB/s")
	tracker.handleLine("[download] Destination: audio.f140.m4a")

	// Second fragment overshooting its reported total must still clamp
	// the combined percentage.
	tracker.handleLine("[download]  80.0% of 6.0MiB at 1.0MiB/s")
	event, emitted := tracker.handleLine("[download]  99.0% of 6.0MiB at 1.0MiB/s")
	if !emitted {
		t.Fatalf("expected event")
	}
	if event.Percent > 100 || event.Percent < 0 {
		t.Fatalf("percent must stay within [0,100], got %v", event.Percent)
	}
}

func TestFragmentTracker_DetectsPostprocessingBanner(t *testing.T) {
	tracker := newFragmentTracker()

	event, emitted := tracker.handleLine("[Merger] Merging formats into \"video.mkv\"")
	if !emitted {
		t.Fatalf("expected a postprocessing event")
	}
	if event.Status != "postprocessing" {
		t.Fatalf("expected status postprocessing, got %q", event.Status)
	}

	if _, emitted := tracker.handleLine("[ExtractAudio] Destination: audio.mp3"); !emitted {
		t.Fatalf("expected a postprocessing event for ExtractAudio banner too")
	}
}
