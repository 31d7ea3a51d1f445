package models

import "math"

// DecodeDescriptor converts the BLOB data to []float32
func DecodeDescriptor(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}

	// 4 bytes per float32, little endian
	vec := make([]float32, len(data)/4)
	for i := 0; i < len(vec); i++ {
		offset := i * 4
		bits := uint32(data[offset]) |
			uint32(data[offset+1])<<8 |
			uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

// EncodeDescriptor converts []float32 to BLOB data
func EncodeDescriptor(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}

	data := make([]byte, len(vec)*4)
	for i, val := range vec {
		offset := i * 4
		bits := math.Float32bits(val)
		data[offset] = byte(bits)
		data[offset+1] = byte(bits >> 8)
		data[offset+2] = byte(bits >> 16)
		data[offset+3] = byte(bits >> 24)
	}
	return data
}

// DescriptorVector decodes the stored descriptor, nil when absent.
func (f Face) DescriptorVector() []float32 {
	return DecodeDescriptor(f.Descriptor)
}

// SetDescriptor stores vec as the face descriptor; an empty vector clears it.
func (f *Face) SetDescriptor(vec []float32) {
	f.Descriptor = EncodeDescriptor(vec)
}
