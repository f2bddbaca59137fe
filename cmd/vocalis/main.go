// Command vocalis is a hands-free voice front end: it listens on the
// microphone, waits for the wake phrase (or converses directly in chat and
// ask mode), hands what the user said to a responder and speaks the reply.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/vocalis/internal/app"
	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/keyboard"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/resilience"
	"github.com/MrWong99/vocalis/internal/session"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/device"
	"github.com/MrWong99/vocalis/pkg/audio/wavfile"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/vocalis/pkg/provider/llm/openai"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/responder/chat"
	"github.com/MrWong99/vocalis/pkg/provider/responder/claudecli"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/stt/deepgram"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/tts/coqui"
	"github.com/MrWong99/vocalis/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/vocalis/pkg/provider/tts/piper"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "vocalis.yaml", "path to the YAML configuration file")
	modeFlag := flag.String("mode", "", "session mode: wake, chat or ask (overrides session.mode)")
	calibrate := flag.Bool("calibrate", false, "measure the microphone noise floor, save it and exit")
	reset := flag.Bool("reset", false, "start a fresh conversation instead of resuming the last one")
	watch := flag.Bool("watch", true, "reload the config file when it changes")
	flag.Parse()

	// A bare "vocalis chat" works like -mode chat.
	if flag.NArg() > 0 && *modeFlag == "" {
		*modeFlag = flag.Arg(0)
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	fs := afero.NewOsFs()
	cfg, err := config.LoadFs(fs, *configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalis: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalis: %v\n", err)
		}
		return 1
	}

	mode := cfg.Mode()
	if *modeFlag != "" {
		if mode, err = session.ParseMode(*modeFlag); err != nil {
			fmt.Fprintf(os.Stderr, "vocalis: %v\n", err)
			return 2
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := newLogger(level)
	slog.SetDefault(logger)

	// ── Signals ───────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audio devices ─────────────────────────────────────────────────────────
	if needsDevices(cfg, *calibrate) {
		terminate, err := device.Init()
		if err != nil {
			slog.Error("failed to initialise audio devices", "err", err)
			return 1
		}
		defer func() {
			if err := terminate(); err != nil {
				slog.Warn("audio device shutdown failed", "err", err)
			}
		}()
	}

	calPath := calibrationPath(cfg)
	if *calibrate {
		return runCalibration(ctx, cfg, fs, calPath)
	}

	slog.Info("vocalis starting",
		"version", version,
		"config", *configPath,
		"mode", mode.String(),
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
		Attributes:     []attribute.KeyValue{attribute.String("vocalis.mode", mode.String())},
		SampleRatio:    cfg.Observe.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	// ── Journal ───────────────────────────────────────────────────────────────
	journal, err := app.OpenJournal(ctx, cfg.Journal, logger)
	if err != nil {
		slog.Error("failed to open journal", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, fs, calPath)
	providers, closers, err := buildProviders(cfg, reg, config.ResponderDeps{
		Journal:      journal.Store,
		JournalLimit: cfg.Journal.Limit,
		ContextDir:   cfg.Session.ContextDir,
	})
	defer closeAll(closers)
	if err != nil {
		journal.Close()
		slog.Error("provider setup failed", "err", err)
		return 1
	}
	if err := attachAudio(cfg, fs, providers); err != nil {
		journal.Close()
		slog.Error("failed to open audio output", "err", err)
		return 1
	}

	printBanner(os.Stdout, cfg, mode)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithLevel(level),
		app.WithJournal(journal),
		app.WithSessionContext(responder.SessionContext{Reset: *reset}),
		app.WithKeyboard(keyboard.New(keyboard.WithInterrupt(stop), keyboard.WithLogger(logger))),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath, fs, 0))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("application setup failed", "err", err)
		return 1
	}

	if *watch {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-hup:
					if !application.Reload() {
						slog.Warn("SIGHUP ignored, config watcher not running")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	code := 0
	if err := application.Run(ctx, mode); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session loop failed", "err", err)
		code = 1
	}

	// ── Shutdown ──────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "err", err)
		return 1
	}
	slog.Info("vocalis stopped", "exit_code", code)
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders adds a factory for every backend shipped with
// vocalis. Factories translate the free-form options of a provider entry
// into the backend's functional options.
func registerBuiltinProviders(reg *config.Registry, fs afero.Fs, calPath string) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOpt("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		timeout, err := entry.DurationOpt("timeout", 0)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, oallm.WithTimeout(timeout))
		}
		if n := entry.IntOpt("max_retries", -1); n >= 0 {
			opts = append(opts, oallm.WithMaxRetries(n))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other family goes through any-llm: optional APIKey and BaseURL.
	for _, providerName := range anyllm.Names() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOpt("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if words := entry.StringsOpt("keywords"); len(words) > 0 {
			boost := entry.FloatOpt("keyword_boost", 2)
			kws := make([]deepgram.Keyword, len(words))
			for i, w := range words {
				kws[i] = deepgram.Keyword{Word: w, Boost: boost}
			}
			opts = append(opts, deepgram.WithKeywords(kws...))
		}
		if c := entry.FloatOpt("min_confidence", 0); c > 0 {
			opts = append(opts, deepgram.WithMinConfidence(c))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOpt("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOpt("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOpt("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.IntOpt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterSynthesizer("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.StringOpt("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := entry.StringOpt("voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterSynthesizer("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := entry.StringOpt("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOpt("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if voice := entry.StringOpt("voice"); voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(voice))
		}
		if rate := entry.IntOpt("sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		timeout, err := entry.DurationOpt("timeout", 0)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, coqui.WithTimeout(timeout))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// Listed after coqui, piper is the local fallback when the server is down.
	reg.RegisterSynthesizer("piper", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		opts := []piper.Option{piper.WithFs(fs), piper.WithLogger(slog.Default())}
		if bin := entry.StringOpt("binary"); bin != "" {
			opts = append(opts, piper.WithBinary(bin))
		}
		if dir := entry.StringOpt("model_dir"); dir != "" {
			opts = append(opts, piper.WithModelDir(dir))
		}
		if voice := cmp.Or(entry.Model, entry.StringOpt("voice")); voice != "" {
			opts = append(opts, piper.WithDefaultVoice(voice))
		}
		if rate := entry.IntOpt("sample_rate", 0); rate > 0 {
			opts = append(opts, piper.WithOutputSampleRate(rate))
		}
		return piper.New(opts...)
	})

	// ── Responders ────────────────────────────────────────────────────────────
	reg.RegisterResponder("claudecli", func(entry config.ProviderEntry, deps config.ResponderDeps) (responder.Responder, error) {
		opts := []claudecli.Option{claudecli.WithFs(fs), claudecli.WithLogger(slog.Default())}
		if bin := entry.StringOpt("binary"); bin != "" {
			opts = append(opts, claudecli.WithBinary(bin))
		}
		if deps.ContextDir != "" {
			opts = append(opts, claudecli.WithContextDir(deps.ContextDir))
		}
		if args := entry.StringsOpt("args"); len(args) > 0 {
			opts = append(opts, claudecli.WithArgs(args...))
		}
		return claudecli.New(opts...), nil
	})

	reg.RegisterResponder("chat", func(entry config.ProviderEntry, deps config.ResponderDeps) (responder.Responder, error) {
		if deps.LLM == nil {
			return nil, errors.New("chat responder requires an llm provider")
		}
		opts := []chat.Option{
			chat.WithSummariser(chat.NewLLMSummariser(deps.LLM)),
			chat.WithLogger(slog.Default()),
		}
		if prompt := entry.StringOpt("system_prompt"); prompt != "" {
			opts = append(opts, chat.WithSystemPrompt(prompt))
		}
		if deps.Journal != nil {
			opts = append(opts, chat.WithJournal(deps.Journal))
			if deps.JournalLimit > 0 {
				opts = append(opts, chat.WithJournalLimit(deps.JournalLimit))
			}
		}
		if n := entry.IntOpt("token_budget", 0); n > 0 {
			opts = append(opts, chat.WithTokenBudget(n))
		}
		if n := entry.IntOpt("max_reply_tokens", 0); n > 0 {
			opts = append(opts, chat.WithMaxReplyTokens(n))
		}
		if temp := entry.FloatOpt("temperature", -1); temp >= 0 {
			opts = append(opts, chat.WithTemperature(temp))
		}
		return chat.New(deps.LLM, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(vc config.VADConfig) (vad.Engine, error) {
		var opts []vad.EnergyOption
		if vc.EnergyThreshold > 0 {
			opts = append(opts, vad.WithThreshold(vc.EnergyThreshold))
		} else if cal, err := vad.LoadCalibration(fs, calPath); err == nil {
			opts = append(opts, vad.WithCalibration(cal))
			slog.Info("using saved noise calibration", "threshold", cal.Threshold, "calibrated_at", cal.CalibratedAt)
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("ignoring unreadable noise calibration", "path", calPath, "err", err)
		}
		return vad.NewEnergyEngine(opts...), nil
	})

	for _, kind := range []string{"llm", "stt", "tts", "responder", "vad"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildGroup instantiates every entry of list in order. Providers that hold
// resources are returned as closers too.
func buildGroup[T any](kind string, list config.ProviderList, create func(config.ProviderEntry) (T, error)) ([]T, []io.Closer, error) {
	var (
		built   []T
		closers []io.Closer
	)
	for _, entry := range list {
		p, err := create(entry)
		if err != nil {
			return nil, closers, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
		}
		if c, ok := any(p).(io.Closer); ok {
			closers = append(closers, c)
		}
		built = append(built, p)
		slog.Info("provider created", "kind", kind, "name", entry.Name)
	}
	return built, closers, nil
}

// failover returns the only provider of built, or all of them chained in
// list order behind the fallback group made by newGroup.
func failover[T any, G interface{ AddFallback(string, T) }](
	built []T,
	list config.ProviderList,
	cfg resilience.FallbackConfig,
	newGroup func(T, string, resilience.FallbackConfig) G,
) T {
	switch len(built) {
	case 0:
		var zero T
		return zero
	case 1:
		return built[0]
	}
	g := newGroup(built[0], list[0].Name, cfg)
	for i, p := range built[1:] {
		g.AddFallback(list[i+1].Name, p)
	}
	return any(g).(T)
}

// buildProviders creates every provider cfg names. Kinds listing more than
// one entry are served by a failover group whose breaker transitions are
// exported as metrics.
func buildProviders(cfg *config.Config, reg *config.Registry, deps config.ResponderDeps) (*app.Providers, []io.Closer, error) {
	pc := cfg.Providers
	fb := cfg.Fallback()
	metrics := observe.DefaultMetrics()
	fb.CircuitBreaker.OnStateChange = func(name string, from, to resilience.State) {
		metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
	}
	ps := &app.Providers{
		Names: app.ProviderNames{
			STT:       pc.STT.Primary().Name,
			TTS:       pc.TTS.Primary().Name,
			Responder: pc.Responder.Primary().Name,
		},
	}
	var closers []io.Closer
	collect := func(c []io.Closer, err error) error {
		closers = append(closers, c...)
		return err
	}

	transcribers, c, err := buildGroup("stt", pc.STT, reg.CreateTranscriber)
	if err := collect(c, err); err != nil {
		return nil, closers, err
	}
	ps.Transcriber = failover(transcribers, pc.STT, fb, resilience.NewTranscriberFallback)

	synths, c, err := buildGroup("tts", pc.TTS, reg.CreateSynthesizer)
	if err := collect(c, err); err != nil {
		return nil, closers, err
	}
	ps.Synthesizer = failover(synths, pc.TTS, fb, resilience.NewSynthesizerFallback)

	// The LLM list is optional and only feeds the chat responder.
	models, c, err := buildGroup("llm", pc.LLM, reg.CreateLLM)
	if err := collect(c, err); err != nil {
		return nil, closers, err
	}
	deps.LLM = failover(models, pc.LLM, fb, resilience.NewLLMFallback)

	responders, c, err := buildGroup("responder", pc.Responder, func(e config.ProviderEntry) (responder.Responder, error) {
		return reg.CreateResponder(e, deps)
	})
	if err := collect(c, err); err != nil {
		return nil, closers, err
	}
	ps.Responder = failover(responders, pc.Responder, fb, resilience.NewResponderFallback)

	engine, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		return nil, closers, fmt.Errorf("create vad engine %q: %w", cfg.VAD.Engine, err)
	}
	ps.VAD = engine
	return ps, closers, nil
}

// attachAudio sets the capture opener and the playback sink: WAV files when
// configured, otherwise the PortAudio devices.
func attachAudio(cfg *config.Config, fs afero.Fs, ps *app.Providers) error {
	ac := cfg.Audio

	if ac.InputFile != "" {
		path := ac.InputFile
		ps.Open = func(context.Context) (audio.Source, error) {
			return wavfile.Open(fs, path, wavfile.WithFrameSize(ac.FrameSize), wavfile.WithRealtime())
		}
	} else {
		mc := device.MicrophoneConfig{
			Device:      ac.InputDevice,
			SampleRate:  ac.SampleRate,
			FrameSize:   ac.FrameSize,
			CaptureRate: ac.CaptureRate,
		}
		ps.Open = func(context.Context) (audio.Source, error) {
			return device.OpenMicrophone(mc)
		}
	}

	if ac.RecordFile != "" {
		rec, err := wavfile.Create(fs, ac.RecordFile, ac.SampleRate)
		if err != nil {
			return err
		}
		ps.Sink = rec
		return nil
	}
	spk, err := device.OpenSpeaker(device.SpeakerConfig{
		Device:     ac.OutputDevice,
		SampleRate: ac.SampleRate,
		Volume:     ac.Volume,
	})
	if err != nil {
		return err
	}
	ps.Sink = spk
	return nil
}

func needsDevices(cfg *config.Config, calibrate bool) bool {
	return calibrate || cfg.Audio.InputFile == "" || cfg.Audio.RecordFile == ""
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// ── Calibration ───────────────────────────────────────────────────────────────

// calibrationPath returns audio.calibration_file, defaulting to
// ~/.config/vocalis/noise_calibration.json.
func calibrationPath(cfg *config.Config) string {
	if cfg.Audio.CalibrationFile != "" {
		return cfg.Audio.CalibrationFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "noise_calibration.json"
	}
	return filepath.Join(dir, "vocalis", "noise_calibration.json")
}

func runCalibration(ctx context.Context, cfg *config.Config, fs afero.Fs, path string) int {
	mic, err := device.OpenMicrophone(device.MicrophoneConfig{
		Device:      cfg.Audio.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		FrameSize:   cfg.Audio.FrameSize,
		CaptureRate: cfg.Audio.CaptureRate,
	})
	if err != nil {
		slog.Error("failed to open microphone", "err", err)
		return 1
	}
	defer mic.Close()

	fmt.Println("Calibrating: stay quiet for a few seconds…")
	cal, err := vad.Calibrate(ctx, mic, vad.DefaultCalibrationFrames)
	if err != nil {
		slog.Error("calibration failed", "err", err)
		return 1
	}
	if err := vad.SaveCalibration(fs, path, cal); err != nil {
		slog.Error("failed to save calibration", "path", path, "err", err)
		return 1
	}
	fmt.Printf("Noise floor %.0f, speech threshold %.0f, saved to %s\n", cal.NoiseFloor, cal.Threshold, path)
	return 0
}

// ── Banner ────────────────────────────────────────────────────────────────────

// printBanner lists what this run will use, one aligned row per setting.
func printBanner(w io.Writer, cfg *config.Config, mode session.Mode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", label, value)
	}
	fmt.Fprintf(tw, "vocalis %s\n", version)
	row("mode", mode.String())
	if mode == session.ModeWake {
		row("wake phrase", strconv.Quote(cfg.Wake.Phrase))
	}
	row("stt", describe(cfg.Providers.STT))
	row("tts", describe(cfg.Providers.TTS))
	row("llm", describe(cfg.Providers.LLM))
	row("responder", describe(cfg.Providers.Responder))
	row("vad", cfg.VAD.Engine)
	row("journal", string(cfg.Journal.Driver))
	row("http", cfg.Server.ListenAddr)
	_ = tw.Flush()
}

// describe renders a provider list as "name/model" entries in failover
// order.
func describe(list config.ProviderList) string {
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
		if p.Model != "" {
			names[i] += "/" + p.Model
		}
	}
	return strings.Join(names, " > ")
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
