package whisperx

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Model is the Whisper model name (e.g. "large-v3").
	Model string
	// Device is "auto", "cpu" or "cuda". Auto probes for nvidia-smi.
	Device      string
	ComputeType string
	// Language is passed through when it normalizes to ISO 639-1.
	Language string
	Task     string
	// ChunkSize bounds VAD chunk length in seconds.
	ChunkSize int
	HFToken   string
}

const (
	DefaultModel      = "large-v3"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "8"
	DefaultChunkSize  = 30
	BeamSize          = "5"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	AutoDevice        = "auto"
	CPUComputeType    = "int8"
	VADMethodSilero   = "silero"
	VADMethodPyannote = "pyannote"
)

// Command names for external tools.
const (
	UVXCommand       = "uvx"
	FFmpegCommand    = "ffmpeg"
	NvidiaSMICommand = "nvidia-smi"
)
