// Command dawnd is the DAWN voice-interactive assistant daemon: it wires
// together audio capture/playback, speech recognition, the LLM
// dispatcher, the MQTT command bus, and (optionally) the network audio
// gateway, then drives the listening state machine until a goodbye
// phrase or SIGINT/SIGTERM (spec §6, §7).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/config"
	"github.com/dawn-project/dawn/pkg/dispatcher"
	"github.com/dawn-project/dawn/pkg/listener"
	"github.com/dawn-project/dawn/pkg/logging"
	"github.com/dawn-project/dawn/pkg/mqttbus"
	"github.com/dawn-project/dawn/pkg/netaudio"
	"github.com/dawn-project/dawn/pkg/orchestrator"
	llmProvider "github.com/dawn-project/dawn/pkg/providers/llm"
	sttProvider "github.com/dawn-project/dawn/pkg/providers/stt"
	ttsProvider "github.com/dawn-project/dawn/pkg/providers/tts"
	"github.com/dawn-project/dawn/pkg/recognizer"
	"github.com/dawn-project/dawn/pkg/router"
	"github.com/dawn-project/dawn/pkg/ttsctl"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "dawnd: no .env file found, using system environment variables")
	}

	flags, code := config.Run()
	if flags == nil {
		return code
	}

	actionCfg, err := config.LoadActionConfig(flags.ActionConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dawnd:", err)
		return 1
	}

	runtimeCfg, err := config.LoadRuntimeConfig(flags.RuntimeConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dawnd:", err)
		return 1
	}
	if mode := flags.DispatchModeOverride(); mode != "" {
		runtimeCfg.DispatchMode = mode
	}
	if flags.LLMMode != "" {
		runtimeCfg.LLMMode = flags.LLMMode
	}
	if flags.CloudProvider != "" {
		runtimeCfg.CloudLLMProvider = flags.CloudProvider
	}
	if flags.NetworkAudio != "" {
		runtimeCfg.NetworkAudioListenAddr = flags.NetworkAudio
	}

	logOut := os.Stdout
	if flags.LogFile != "" {
		f, err := os.OpenFile(flags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "dawnd: open logfile:", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.NewZerologAdapter(logOut, zerolog.InfoLevel)

	stt, err := buildSTT(runtimeCfg)
	if err != nil {
		logger.Error("dawnd: stt provider", "error", err)
		return 1
	}
	logger.Info("dawnd: stt provider selected", "name", stt.Name())

	llm, err := buildLLM(runtimeCfg)
	if err != nil {
		logger.Error("dawnd: llm provider", "error", err)
		return 1
	}
	logger.Info("dawnd: llm provider selected", "name", llm.Name())

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		logger.Error("dawnd: LOKUTOR_API_KEY must be set")
		return 1
	}
	tts := ttsProvider.NewLokutorTTS(lokutorKey)

	devices, err := audio.NewDeviceManager(actionCfg.CaptureDeviceEntries(), actionCfg.PlaybackDeviceEntries())
	if err != nil {
		logger.Error("dawnd: device manager", "error", err)
		return 1
	}
	defer devices.Close()

	capture, err := devices.OpenCapture(flags.CaptureDevice, runtimeCfg.FrameDuration)
	if err != nil {
		logger.Error("dawnd: open capture device", "error", err)
		return 1
	}
	defer func() {
		if capture != nil {
			capture.Close()
		}
	}()

	// reopenCapture satisfies listener.Options.Reopen: it closes the
	// superseded device and replaces capture so the deferred Close above
	// always targets the live device (spec §4.1/§4.2 reopen-once policy).
	reopenCapture := func() (listener.Capture, error) {
		old := capture
		next, err := devices.OpenCapture(flags.CaptureDevice, runtimeCfg.FrameDuration)
		if err != nil {
			return nil, err
		}
		capture = next
		if old != nil {
			old.Close()
		}
		return capture, nil
	}

	playback, err := devices.OpenPlayback(flags.PlaybackDevice, runtimeCfg.FrameDuration)
	if err != nil {
		logger.Error("dawnd: open playback device", "error", err)
		return 1
	}
	defer playback.Close()

	bus, err := mqttbus.New(mqttbus.Options{
		BrokerURL:   runtimeCfg.MQTTBrokerURL,
		ClientID:    runtimeCfg.MQTTClientID,
		TopicPrefix: runtimeCfg.MQTTTopicPrefix,
		StatusTopic: runtimeCfg.MQTTStatusTopic,
		AIName:      actionCfg.AIName,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("dawnd: mqtt connect", "error", err)
		return 1
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lang := orchestrator.Language(os.Getenv("AGENT_LANGUAGE"))
	if lang == "" {
		lang = orchestrator.LanguageEn
	}

	rec := recognizer.New(stt, lang)
	ttsCtl := ttsctl.New(tts, playback, orchestrator.VoiceF1, lang, audio.SampleRate, logger)
	defer ttsCtl.Close()

	sink := listener.NewSpeakSink(ttsCtl.Speak)

	r := router.New(actionCfg.Actions, bus)
	r.RegisterHandler("date", router.NewDateTimeHandler(sink.Speak, time.Now))
	r.RegisterHandler("time", router.NewDateTimeHandler(sink.Speak, time.Now))
	r.RegisterHandler("text_to_speech", router.NewTextToSpeechHandler(sink.Speak))

	quitRequested := make(chan struct{})
	var quitOnce bool
	r.RegisterHandler("shutdown", router.NewShutdownHandler(func() {
		if !quitOnce {
			quitOnce = true
			close(quitRequested)
		}
	}))

	session := orchestrator.NewConversationSession(actionCfg.AIName)
	session.AddMessage("system", fmt.Sprintf(
		"You are %s, a helpful and concise voice assistant. Use short sentences suitable for speech.",
		actionCfg.AIName))

	disp := dispatcher.New(llm, session, r, bus, runtimeCfg.MaxLLMIterations, runtimeCfg.ToolCallTimeout, logger)

	if err := bus.Subscribe(disp.ResolveToolResult); err != nil {
		logger.Error("dawnd: mqtt subscribe", "error", err)
		return 1
	}

	engine := listener.NewCommandEngine(runtimeCfg.DispatchMode, r, disp, listener.DefaultIgnoreWords)

	var netSlot *netaudio.RendezvousSlot
	var gateway *netaudio.Gateway
	if runtimeCfg.NetworkAudioListenAddr != "" {
		netSlot = netaudio.NewRendezvousSlot()
		gateway = netaudio.NewGateway(netSlot, netaudio.Options{
			Addr:         runtimeCfg.NetworkAudioListenAddr,
			AwaitTimeout: 30 * time.Second,
			MaxByteCap:   runtimeCfg.NetworkAudioMaxMessage,
			Logger:       logger,
		})
		go func() {
			if err := gateway.ListenAndServe(ctx); err != nil {
				logger.Warn("dawnd: network audio gateway stopped", "error", err)
			}
		}()
		defer gateway.Close()
	}

	ambient := audio.NewAmbientEstimator()
	ambient.TalkingOffset = runtimeCfg.TalkingOffset
	frameBuf := make([]byte, audio.FrameBytes(runtimeCfg.FrameDuration))

	ambientRMS, err := ambient.Estimate(capture, frameBuf, runtimeCfg.AmbientStartup)
	if err != nil {
		logger.Error("dawnd: ambient calibration", "error", err)
		return 1
	}
	logger.Info("dawnd: ambient calibration complete", "rms", ambientRMS)

	machine := listener.New(listener.Options{
		Capture:         capture,
		Reopen:          reopenCapture,
		Recognizer:      rec,
		TTS:             ttsCtl,
		Engine:          engine,
		Status:          bus,
		NetSlot:         netSlot,
		Sink:            sink,
		AmbientRMS:      ambientRMS,
		Ambient:         ambient,
		Silence:         audio.NewSilenceCounter(runtimeCfg.SilenceConfirmFrames),
		WakeWords:       listener.NewWakeTable(actionCfg.AIName),
		GoodbyeWords:    listener.DefaultGoodbyeWords,
		CancelWords:     listener.DefaultCancelWords,
		FrameBuf:        frameBuf,
		NetAwaitTimeout: 30 * time.Second,
		Logger:          logger,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		machine.Run(ctx)
		close(done)
	}()

	select {
	case <-sig:
		logger.Info("dawnd: shutdown signal received")
	case <-quitRequested:
		logger.Info("dawnd: shutdown requested via command")
	case <-done:
	}

	ttsCtl.Speak("Goodbye sir.")
	machine.RequestQuit()
	cancel()
	<-done

	if path, err := dispatcher.SaveHistory(session, ".", time.Now()); err != nil {
		logger.Warn("dawnd: failed to persist conversation history", "error", err)
	} else {
		logger.Info("dawnd: conversation history saved", "path", path)
	}

	return 0
}

// buildSTT selects and constructs the batch STT backend named by the
// runtime config (spec §4.4), requiring that backend's API key to be
// present in the environment. Errors are wrapped with the selected
// provider's name so misconfiguration is traceable to a single backend.
func buildSTT(rc *config.RuntimeConfig) (orchestrator.STTProvider, error) {
	switch rc.STTProvider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("stt provider %q: OPENAI_API_KEY must be set", rc.STTProvider)
		}
		return sttProvider.NewOpenAISTT(key, rc.OpenAISTTModel), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("stt provider %q: DEEPGRAM_API_KEY must be set", rc.STTProvider)
		}
		return sttProvider.NewDeepgramSTT(key), nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("stt provider %q: ASSEMBLYAI_API_KEY must be set", rc.STTProvider)
		}
		return sttProvider.NewAssemblyAISTT(key), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("stt provider %q: GROQ_API_KEY must be set", rc.STTProvider)
		}
		return sttProvider.NewGroqSTT(key, rc.GroqSTTModel), nil
	}
}

// buildLLM selects and constructs the LLM backend driving the Dispatcher
// (spec §4.6): Ollama for "-m local", or one of the cloud providers named
// by the runtime config, each requiring its own API key in the
// environment. Errors are wrapped with the selected provider's name so
// misconfiguration is traceable to a single backend.
func buildLLM(rc *config.RuntimeConfig) (orchestrator.LLMProvider, error) {
	if rc.LLMMode == "local" {
		return llmProvider.NewOllamaLLM(rc.OllamaURL, rc.OllamaModel), nil
	}

	switch rc.CloudLLMProvider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider %q: OPENAI_API_KEY must be set", rc.CloudLLMProvider)
		}
		return llmProvider.NewOpenAILLM(key, rc.CloudLLMModel), nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider %q: ANTHROPIC_API_KEY must be set", rc.CloudLLMProvider)
		}
		return llmProvider.NewAnthropicLLM(key, rc.CloudLLMModel), nil
	case "google":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider %q: GEMINI_API_KEY must be set", rc.CloudLLMProvider)
		}
		return llmProvider.NewGoogleLLM(key, rc.CloudLLMModel), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider %q: GROQ_API_KEY must be set", rc.CloudLLMProvider)
		}
		return llmProvider.NewGroqLLM(key, rc.CloudLLMModel), nil
	}
}
