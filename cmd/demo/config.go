package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/voxlink-ai/translingo/pkg/pipeline"
)

// DemoConfig is the reference wiring's own layer on top of pipeline.Config:
// provider selection and transport settings pipeline.Config has no opinion
// about, loaded from an optional config file plus environment variables.
// pipeline.Config itself is still constructed and Validate-ed the normal
// way.
type DemoConfig struct {
	ASRProvider string // "whisper"
	MTProvider  string // "openai" | "anthropic"
	VADProvider string // "neural" | "energy"

	OpenAIAPIKey    string
	AnthropicAPIKey string
	SherpaModelPath string

	SourceLang pipeline.Language
	TargetLang pipeline.Language

	ListenAddr string // websocket event bridge bind address

	EchoGateEnabled bool
}

// loadDemoConfig layers a "translingo" config file (if present, in any
// viper-supported format under the current directory) with
// TRANSLINGO_-prefixed environment variables.
func loadDemoConfig() (DemoConfig, error) {
	v := viper.New()
	v.SetConfigName("translingo")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("translingo")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.BindEnv("openai_api_key", "TRANSLINGO_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("anthropic_api_key", "TRANSLINGO_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.SetDefault("asr_provider", "whisper")
	v.SetDefault("mt_provider", "openai")
	v.SetDefault("vad_provider", "energy")
	v.SetDefault("source_lang", string(pipeline.LangAuto))
	v.SetDefault("target_lang", string(pipeline.LangEn))
	v.SetDefault("listen_addr", ":8642")
	v.SetDefault("echo_gate_enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return DemoConfig{}, fmt.Errorf("demo config: %w", err)
		}
	}

	return DemoConfig{
		ASRProvider:     v.GetString("asr_provider"),
		MTProvider:      v.GetString("mt_provider"),
		VADProvider:     v.GetString("vad_provider"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		SherpaModelPath: v.GetString("sherpa_model_path"),
		SourceLang:      pipeline.Language(v.GetString("source_lang")),
		TargetLang:      pipeline.Language(v.GetString("target_lang")),
		ListenAddr:      v.GetString("listen_addr"),
		EchoGateEnabled: v.GetBool("echo_gate_enabled"),
	}, nil
}
