package wave

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes interleaved 16-bit PCM test data to a temp file.
func writeWAV(t *testing.T, dir, name string, data []int, channels, sampleRate int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close encoder: %v", err)
	}
	return path
}

func TestDecodeMono(t *testing.T) {
	dir := t.TempDir()
	data := []int{0, 16384, -16384, 32767}
	path := writeWAV(t, dir, "mono.wav", data, 1, 16000)

	samples, rate, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if len(samples) != len(data) {
		t.Fatalf("Expected %d samples, got %d", len(data), len(samples))
	}

	for i, want := range []float32{0, 0.5, -0.5, 32767.0 / 32768.0} {
		if math.Abs(float64(samples[i]-want)) > 1e-4 {
			t.Errorf("Sample %d: expected %f, got %f", i, want, samples[i])
		}
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	dir := t.TempDir()
	// Two frames: (16384, 0) and (-16384, -16384).
	data := []int{16384, 0, -16384, -16384}
	path := writeWAV(t, dir, "stereo.wav", data, 2, 16000)

	samples, _, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("Expected 2 downmixed frames, got %d", len(samples))
	}
	if math.Abs(float64(samples[0]-0.25)) > 1e-4 {
		t.Errorf("Frame 0: expected 0.25, got %f", samples[0])
	}
	if math.Abs(float64(samples[1]+0.5)) > 1e-4 {
		t.Errorf("Frame 1: expected -0.5, got %f", samples[1])
	}
}

func TestFrameCount(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		frames   int
		channels int
	}{
		{name: "mono", frames: 480, channels: 1},
		{name: "stereo", frames: 240, channels: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]int, tt.frames*tt.channels)
			path := writeWAV(t, dir, tt.name+".wav", data, tt.channels, 16000)

			n, err := FrameCount(path)
			if err != nil {
				t.Fatalf("FrameCount failed: %v", err)
			}
			if n != int64(tt.frames) {
				t.Errorf("Expected %d frames, got %d", tt.frames, n)
			}
		})
	}
}

func TestDecodeInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, _, err := Decode(path); err == nil {
		t.Error("Expected error decoding invalid file")
	}
	if _, err := FrameCount(path); err == nil {
		t.Error("Expected error probing invalid file")
	}
}
