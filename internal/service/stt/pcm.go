package stt

import (
	"encoding/binary"
	"math"
)

// FloatToL16 converts float samples in [-1, 1] to little-endian signed 16-bit PCM.
// Out-of-range samples are clipped.
func FloatToL16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return out
}

// L16ToFloat converts little-endian signed 16-bit PCM back to float samples.
func L16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
	}
	return out
}
