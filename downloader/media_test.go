package downloader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.flac", "a.MP3", "cover.jpg", filepath.Join("disc 2", "c.opus"), "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	files, err := ListAudioFiles(dir)
	if err != nil {
		t.Fatalf("ListAudioFiles() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 audio files, got %v", files)
	}
	if filepath.Base(files[0]) != "a.MP3" {
		t.Errorf("expected sorted output, got %v", files)
	}

	missing, err := ListAudioFiles(filepath.Join(dir, "missing"))
	if err != nil || len(missing) != 0 {
		t.Errorf("expected empty result for missing dir, got %v, %v", missing, err)
	}
}

func TestProbeAudioFromFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "03. Daft Punk - Digital Love.flac")
	if err := os.WriteFile(path, []byte("flac-data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	info := ProbeAudio(path)
	if info.Title != "Digital Love" || info.Performer != "Daft Punk" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Size != int64(len("flac-data")) {
		t.Errorf("unexpected size %d", info.Size)
	}
}

func TestProbeAudioInvalidM4A(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Artist - Song.m4a")
	if err := os.WriteFile(path, []byte("not an mp4"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	info := ProbeAudio(path)
	if info.Duration != 0 {
		t.Errorf("expected zero duration for unparsable file, got %s", info.Duration)
	}
	if info.Title != "Song" || info.Performer != "Artist" {
		t.Errorf("expected file name fallback, got %+v", info)
	}
}
