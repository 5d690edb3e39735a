package audio

import (
	"encoding/binary"
	"fmt"
)

// Samples decodes interleaved little-endian device bytes into one int per
// sample, the representation expected by WAV encoders:
//
//   - U8 values keep their unsigned range (0..255), as WAV stores 8-bit PCM
//     unsigned.
//   - S16 and S32 are sign-extended.
//   - F32 keeps the raw IEEE bit pattern reinterpreted as int32, so an encoder
//     writing 32-bit words with the float audio format reproduces the original
//     samples exactly.
//
// Trailing bytes that do not form a whole sample are ignored.
func Samples(f SampleFormat, pcm []byte) ([]int, error) {
	switch f {
	case FormatU8:
		out := make([]int, len(pcm))
		for i, b := range pcm {
			out[i] = int(b)
		}
		return out, nil
	case FormatS16:
		out := make([]int, len(pcm)/2)
		for i := range out {
			out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		}
		return out, nil
	case FormatS32, FormatF32:
		out := make([]int, len(pcm)/4)
		for i := range out {
			out[i] = int(int32(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("audio: decode samples: unsupported format %s", f)
	}
}

// ResampleStereo16 resamples 16-bit stereo PCM from srcRate to dstRate using
// linear interpolation. Each stereo frame is 4 bytes (L+R interleaved).
// If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		next := srcIdx
		if srcIdx+1 < srcFrames {
			next = srcIdx + 1
		}
		for ch := range 2 {
			s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*4+ch*2:]))
			s1 := int16(binary.LittleEndian.Uint16(pcm[next*4+ch*2:]))
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			binary.LittleEndian.PutUint16(out[i*4+ch*2:], uint16(v))
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
