package checksum

import "golang.org/x/sys/cpu"

// Features are the CPU capabilities that decide the checksum variant.
type Features struct {
	SSE42      bool // amd64 CRC32 instruction
	PCLMULQDQ  bool // amd64 carry-less multiply, used to fold long inputs
	ARM64CRC32 bool // ARMv8 CRC32C instructions
}

// Detect reads the capabilities of the executing CPU.
func Detect() Features {
	return Features{
		SSE42:      cpu.X86.HasSSE42,
		PCLMULQDQ:  cpu.X86.HasPCLMULQDQ,
		ARM64CRC32: cpu.ARM64.HasCRC32,
	}
}

// Select picks the fastest variant the given features support.
// It has no side effects, so the choice can be tested for any CPU.
func Select(f Features) Variant {
	if (f.SSE42 && f.PCLMULQDQ) || f.ARM64CRC32 {
		return Hardware
	}
	return Slicing8
}
