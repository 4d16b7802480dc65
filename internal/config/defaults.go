package config

const (
	defaultDataDir             = "~/.local/share/dubber"
	defaultAudioDir            = "~/.local/share/dubber/audio"
	defaultLogDir              = "~/.local/share/dubber/logs"
	defaultTTSBaseURL          = "https://api.minimax.chat/v1/t2a_v2"
	defaultTTSModel            = "speech-02-hd"
	defaultTTSVoice            = "ai_her_04"
	defaultTTSSampleRate       = 32000
	defaultTTSBitrate          = 128000
	defaultTTSFormat           = "mp3"
	defaultTTSTimeoutSeconds   = 30
	defaultTranslationBaseURL  = "https://api.minimax.chat/v1/text/chatcompletion_v2"
	defaultTranslationModel    = "MiniMax-Text-01"
	defaultTranslationTemp     = 0.01
	defaultTranslationTimeout  = 30
	defaultTranslationDelaySec = 2
	defaultMatcherTolerance    = 8.0
	defaultMatcherMaxSpeed     = 2.0
	defaultMatcherMaxRounds    = 3
	defaultBatchWorkers        = 4
	defaultBatchMinFreeMiB     = 256
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultVoiceMapping() map[string]string {
	return map[string]string{
		"SPEAKER_00": "ai_her_04",
		"SPEAKER_01": "male-qn-qingse",
		"SPEAKER_02": "female-shaonv",
		"SPEAKER_03": "male-qn-jingying",
		"SPEAKER_04": "female-yujie",
		"SPEAKER_05": "male-qn-badao",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Model:          defaultTTSModel,
			DefaultVoice:   defaultTTSVoice,
			VoiceMapping:   defaultVoiceMapping(),
			SampleRate:     defaultTTSSampleRate,
			Bitrate:        defaultTTSBitrate,
			Format:         defaultTTSFormat,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		Translation: Translation{
			BaseURL:             defaultTranslationBaseURL,
			Model:               defaultTranslationModel,
			Temperature:         defaultTranslationTemp,
			TimeoutSeconds:      defaultTranslationTimeout,
			RequestDelaySeconds: defaultTranslationDelaySec,
		},
		Matcher: Matcher{
			TolerancePercent: defaultMatcherTolerance,
			MaxSpeed:         defaultMatcherMaxSpeed,
			MaxRounds:        defaultMatcherMaxRounds,
		},
		Batch: Batch{
			Workers:    defaultBatchWorkers,
			MinFreeMiB: defaultBatchMinFreeMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
