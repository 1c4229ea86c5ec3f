package wave

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Decode reads a WAV file and returns its samples as mono float32 in
// [-1, 1] plus the sample rate. Multi-channel audio is downmixed by
// channel-wise averaging.
func Decode(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid wav file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM data from %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("%s reports %d channels", path, channels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c])
		}
		samples[i] = sum / float32(channels) / scale
	}

	return samples, buf.Format.SampleRate, nil
}

// FrameCount probes the number of audio frames in a WAV file by reading
// only the headers, without decoding the PCM payload.
func FrameCount(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return 0, fmt.Errorf("failed to read wav header of %s: %w", path, err)
	}
	if decoder.NumChans == 0 || decoder.BitDepth == 0 {
		return 0, fmt.Errorf("%s has a malformed wav header", path)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("failed to locate PCM chunk in %s: %w", path, err)
	}

	bytesPerFrame := int64(decoder.NumChans) * int64(decoder.BitDepth/8)
	return decoder.PCMLen() / bytesPerFrame, nil
}
