package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DispatchMode selects how the Command Router handles a recognized
// transcript (spec §4.6, §9 redesign flag).
type DispatchMode string

const (
	// DispatchDirectOnly matches against the action table; an unmatched
	// utterance on the ignore list is dropped, any other goes to the LLM
	// dispatcher.
	DispatchDirectOnly DispatchMode = "direct_only"
	// DispatchDirectFirst tries the action table first and falls through
	// to the LLM dispatcher on no match. This is the default.
	DispatchDirectFirst DispatchMode = "direct_first"
	// DispatchLLMOnly skips the action table entirely and always routes
	// through the LLM dispatcher.
	DispatchLLMOnly DispatchMode = "llm_only"
)

// RuntimeConfig holds the thresholds, timeouts, endpoints, model names,
// and feature toggles that make up spec §6's "runtime knobs" file. It is
// read once at startup via viper and never mutated afterward — mid-run
// configuration drift is explicitly out of scope (spec §7).
type RuntimeConfig struct {
	TalkingOffset            float64
	AmbientStartup           time.Duration
	FrameDuration            time.Duration
	SilenceConfirmFrames     int
	WakeWordTimeout          time.Duration
	CommandRecordingMax      time.Duration
	ToolCallTimeout          time.Duration
	MaxLLMIterations         int
	DispatchMode             DispatchMode

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTStatusTopic string

	NetworkAudioListenAddr  string
	NetworkAudioMaxFrame    int
	NetworkAudioMaxMessage  int
	NetworkAudioRetryLimit  int

	STTProvider string
	GroqSTTModel       string
	OpenAISTTModel     string

	LLMMode          string // "cloud" or "local"
	CloudLLMProvider string // "openai", "anthropic", "google", "groq"
	CloudLLMModel    string
	OllamaURL        string
	OllamaModel      string

	TTSVoice string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("talking_offset", 0.025)
	v.SetDefault("ambient_startup", "6s")
	v.SetDefault("frame_duration", "20ms")
	v.SetDefault("silence_confirm_frames", 3)
	v.SetDefault("wake_word_timeout", "10s")
	v.SetDefault("command_recording_max", "15s")
	v.SetDefault("tool_call_timeout", "10s")
	v.SetDefault("max_llm_iterations", 4)
	v.SetDefault("dispatch_mode", string(DispatchDirectFirst))

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "dawn")
	v.SetDefault("mqtt.topic_prefix", "dawn")
	v.SetDefault("mqtt.status_topic", "hud")

	v.SetDefault("network_audio.listen_addr", "")
	v.SetDefault("network_audio.max_frame_bytes", 8192)
	v.SetDefault("network_audio.max_message_bytes", 10*1024*1024)
	v.SetDefault("network_audio.retry_limit", 3)

	v.SetDefault("stt.provider", "groq")
	v.SetDefault("stt.groq_model", "whisper-large-v3-turbo")
	v.SetDefault("stt.openai_model", "whisper-1")

	v.SetDefault("llm.mode", "cloud")
	v.SetDefault("llm.cloud_provider", "groq")
	v.SetDefault("llm.cloud_model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.ollama_model", "llama3.2")

	v.SetDefault("tts.voice", "F1")
}

// LoadRuntimeConfig reads the TOML runtime knobs file at path, applying
// DAWN_-prefixed environment variable overrides (spec §6), e.g.
// DAWN_LLM_MODE=local overrides llm.mode.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("DAWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read runtime config: %w", err)
	}

	rc := &RuntimeConfig{
		TalkingOffset:        v.GetFloat64("talking_offset"),
		AmbientStartup:       v.GetDuration("ambient_startup"),
		FrameDuration:        v.GetDuration("frame_duration"),
		SilenceConfirmFrames: v.GetInt("silence_confirm_frames"),
		WakeWordTimeout:      v.GetDuration("wake_word_timeout"),
		CommandRecordingMax:  v.GetDuration("command_recording_max"),
		ToolCallTimeout:      v.GetDuration("tool_call_timeout"),
		MaxLLMIterations:     v.GetInt("max_llm_iterations"),
		DispatchMode:         DispatchMode(v.GetString("dispatch_mode")),

		MQTTBrokerURL:   v.GetString("mqtt.broker_url"),
		MQTTClientID:    v.GetString("mqtt.client_id"),
		MQTTTopicPrefix: v.GetString("mqtt.topic_prefix"),
		MQTTStatusTopic: v.GetString("mqtt.status_topic"),

		NetworkAudioListenAddr: v.GetString("network_audio.listen_addr"),
		NetworkAudioMaxFrame:   v.GetInt("network_audio.max_frame_bytes"),
		NetworkAudioMaxMessage: v.GetInt("network_audio.max_message_bytes"),
		NetworkAudioRetryLimit: v.GetInt("network_audio.retry_limit"),

		STTProvider:    v.GetString("stt.provider"),
		GroqSTTModel:   v.GetString("stt.groq_model"),
		OpenAISTTModel: v.GetString("stt.openai_model"),

		LLMMode:          v.GetString("llm.mode"),
		CloudLLMProvider: v.GetString("llm.cloud_provider"),
		CloudLLMModel:    v.GetString("llm.cloud_model"),
		OllamaURL:        v.GetString("llm.ollama_url"),
		OllamaModel:      v.GetString("llm.ollama_model"),

		TTSVoice: v.GetString("tts.voice"),
	}

	switch rc.DispatchMode {
	case DispatchDirectOnly, DispatchDirectFirst, DispatchLLMOnly:
	default:
		return nil, fmt.Errorf("config: invalid dispatch_mode %q", rc.DispatchMode)
	}

	return rc, nil
}
