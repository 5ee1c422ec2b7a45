package config

const (
	defaultWorkDir               = "~/.local/share/callsight/work"
	defaultLogDir                = "~/.local/share/callsight/logs"
	defaultHistoryDB             = "~/.local/share/callsight/history.db"
	defaultServerBind            = "127.0.0.1:8000"
	defaultMaxUploadMB           = 512
	defaultSessionTimeoutSeconds = 1800
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultWhisperModel          = "base"
	defaultVADMethod             = "silero"
	defaultFFmpegBinary          = "ffmpeg"
	defaultDiarizationBackend    = "pyannote"
	defaultDiarizationModel      = "pyannote/speaker-diarization-3.1"
	defaultSidecarURL            = "http://localhost:8388"
	defaultSidecarTimeoutSeconds = 600
	defaultSidecarMaxRetries     = 3
)

// Diarization backend identifiers.
const (
	DiarizationBackendPyannote = "pyannote"
	DiarizationBackendSidecar  = "sidecar"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
		},
		Server: Server{
			Bind:                  defaultServerBind,
			MaxUploadMB:           defaultMaxUploadMB,
			SessionTimeoutSeconds: defaultSessionTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Transcription: Transcription{
			Model:        defaultWhisperModel,
			VADMethod:    defaultVADMethod,
			FFmpegBinary: defaultFFmpegBinary,
		},
		Diarization: Diarization{
			Backend:               defaultDiarizationBackend,
			Model:                 defaultDiarizationModel,
			SidecarURL:            defaultSidecarURL,
			RequestTimeoutSeconds: defaultSidecarTimeoutSeconds,
			MaxRetries:            defaultSidecarMaxRetries,
		},
		Detectors: Detectors{
			PIIPatterns: map[string]string{
				"credit_card": `\b(?:\d[ -]?){13,16}\b`,
				"email":       `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
				"phone":       `\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`,
				"ssn":         `\b\d{3}-\d{2}-\d{4}\b`,
			},
			SensitiveWords:  []string{"password", "pin number", "account number", "social security"},
			ProfanityWords:  []string{"damn", "hell", "crap", "shit", "fuck", "bastard", "bitch", "asshole"},
			RequiredPhrases: []string{"thank you for calling", "how (can|may) i help you", "is there anything else"},
			Categories: map[string][]string{
				"Billing":           {"bill", "billing", "invoice", "charge", "payment", "refund"},
				"Technical Support": {"error", "not working", "crash", "install", "reset", "outage"},
				"Account":           {"password", "login", "account", "username", "locked"},
				"Sales":             {"buy", "purchase", "price", "upgrade", "plan", "discount"},
			},
		},
		Summary: Summary{ShowAllSpeakers: false},
		Metrics: Metrics{Enabled: true},
		History: History{Enabled: true},
	}
}
