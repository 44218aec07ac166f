package audio

import "encoding/binary"

// S16LEToFloat32 converts little-endian 16-bit PCM to samples in [-1, 1)
func S16LEToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return samples
}
