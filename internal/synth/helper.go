package synth

import (
	"errors"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	encodeBitDepth = 16
	// -14 dBFS, a common streaming loudness target.
	loudnessTargetRMS = 0.2
)

// EncodeWAV writes float samples in [-1, 1] as a 16-bit PCM WAV file.
// channels holds one sample slice per channel; anything past stereo is
// dropped. Samples outside [-1, 1] are hard-limited at the codec boundary.
func EncodeWAV(channels [][]float64, sampleRate int) ([]byte, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, ErrNoAudio
	}
	if sampleRate <= 0 {
		return nil, errors.Join(ErrSynthesis, errors.New("invalid sample rate"))
	}

	if len(channels) > 2 {
		channels = channels[:2]
	}
	numChannels := len(channels)
	numFrames := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) < numFrames {
			numFrames = len(ch)
		}
	}

	data := make([]int, 0, numFrames*numChannels)
	for i := 0; i < numFrames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			sample := channels[ch][i]
			if sample > 1 {
				sample = 1
			} else if sample < -1 {
				sample = -1
			}
			data = append(data, int(sample*math.MaxInt16))
		}
	}

	buf := &writeSeekBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, encodeBitDepth, numChannels, 1)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: encodeBitDepth,
		Data:           data,
	}

	if err := enc.Write(intBuf); err != nil {
		return nil, errors.Join(ErrSynthesis, err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Join(ErrSynthesis, err)
	}

	return buf.Bytes(), nil
}

// NormalizeLoudness scales the waveform toward the target RMS and runs it
// through a tanh soft limiter, so the output stays strictly inside
// (-1, 1) regardless of the applied gain.
func NormalizeLoudness(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}

	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		copy(out, samples)
		return out
	}

	gain := loudnessTargetRMS / rms
	for i, s := range samples {
		out[i] = math.Tanh(s * gain)
	}
	return out
}

// FlattenBatch squeezes the batch dimension of a model response down to a
// single waveform's channel set, mirroring how text-to-audio pipelines
// return [batch, channels, samples] tensors for a one-prompt batch.
func FlattenBatch(batch [][][]float64) [][]float64 {
	if len(batch) == 0 {
		return nil
	}
	return batch[0]
}

// writeSeekBuffer is an in-memory io.WriteSeeker. The wav encoder seeks
// back to patch chunk sizes on Close, so a plain bytes.Buffer is not
// enough.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(pos)
	return pos, nil
}

func (b *writeSeekBuffer) Bytes() []byte {
	return b.data
}
