package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Xsert/french-fluency-forge-sub001/internal/handler"
	appI18n "github.com/Xsert/french-fluency-forge-sub001/internal/i18n"
	"github.com/Xsert/french-fluency-forge-sub001/internal/llm"
	"github.com/Xsert/french-fluency-forge-sub001/internal/llm/prompts"
	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/orchestrator"
	"github.com/Xsert/french-fluency-forge-sub001/internal/promptbank"
	"github.com/Xsert/french-fluency-forge-sub001/internal/scoring"
	"github.com/Xsert/french-fluency-forge-sub001/internal/session"
	"github.com/Xsert/french-fluency-forge-sub001/internal/speech"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fluencyforge",
		Short: "Spoken French assessment server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `fluencyforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "fluencyforge.db", "SQLite database path")
	f.StringSliceP("prompts", "p", []string{"prompts/french_core.json"}, "Paths to prompt catalog JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name for rubric scoring")
	f.String("stt-model", "whisper-1", "Speech-to-text model name")
	f.String("assess-url", "", "Pronunciation assessment service base URL")
	f.String("assess-key", "", "API key for the pronunciation assessment service")
	f.String("tts-url", "", "Text-to-speech service base URL (empty disables synthesis)")
	f.String("audio-dir", "audio", "Directory for cached reference audio")
	f.StringP("lang", "l", "en", "Default feedback language (en, fr)")
	f.Int("cooldown-days", session.DefaultCooldownDays, "Days between official exam attempts")
	f.Bool("determinism-guard", false, "Score rubric items three times and flag unstable results")
	f.String("prompt-variant", string(prompts.VariantStandard), "Rubric prompt variant (strict, standard, lenient)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export assessment results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "fluencyforge.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("FLUENCYFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fluencyforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/fluencyforge")
	v.AddConfigPath("/etc/fluencyforge")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	catalogPaths := v.GetStringSlice("prompts")
	bank, err := promptbank.Load(catalogPaths)
	if err != nil {
		return fmt.Errorf("load prompt catalogs: %w", err)
	}
	if err := checkCatalogHashes(db, catalogPaths); err != nil {
		return fmt.Errorf("check catalog hashes: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.VariantStandard)
	}
	llmClient, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		promptVariant,
	)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	guard := llm.NewGuard(llmClient, llm.DefaultGuardConfig(v.GetBool("determinism-guard")))
	transcriber := speech.NewWhisperTranscriber(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("stt-model"),
	)
	assessor := speech.NewHTTPAssessor(v.GetString("assess-url"), v.GetString("assess-key"))

	var synth speech.Synthesizer
	if ttsURL := v.GetString("tts-url"); ttsURL != "" {
		synth = speech.NewHTTPSynthesizer(ttsURL, "fr", v.GetString("audio-dir"))
	}

	cfg := model.AssessmentConfig{
		ItemCounts:       model.DefaultItemCounts(),
		CooldownDays:     v.GetInt("cooldown-days"),
		DeterminismGuard: v.GetBool("determinism-guard"),
		Language:         lang,
		PromptVariant:    promptVariant,
	}

	mgr := session.NewManager(db, bank, cfg)
	orch := orchestrator.New(db, transcriber, assessor, guard, "fr")
	retry := session.NewRetryPolicy(db, cfg.CooldownDays)

	bankVersion := bank.CompositeVersion(model.ModuleOrder())
	if err := db.RecordDeploymentVersions(bankVersion, scoring.Version); err != nil {
		return fmt.Errorf("record deployment versions: %w", err)
	}

	h := handler.New(mgr, orch, retry, synth, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"bank_version", bankVersion,
		"scorer_version", scoring.Version,
		"cooldown_days", cfg.CooldownDays,
		"determinism_guard", cfg.DeterminismGuard,
	)
	return http.ListenAndServe(addr, r)
}

// checkCatalogHashes records a hash per catalog file and warns when one
// changed since the last start. Existing sessions are unaffected either way
// (they carry frozen prompt snapshots), but a silent catalog edit under an
// unchanged version string is worth flagging.
func checkCatalogHashes(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		hash := sha256sum(data)

		key := "catalog_hash:" + path
		stored, err := db.GetMetadata(key)
		if err != nil {
			return fmt.Errorf("read stored hash for %s: %w", path, err)
		}
		if stored != "" && stored != hash {
			slog.Warn("prompt catalog changed since last start", "path", path)
		}
		if err := db.SetMetadata(key, hash); err != nil {
			return fmt.Errorf("record hash for %s: %w", path, err)
		}
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
