package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/client"
	"github.com/stemsi/exstem-attempt/internal/clientconfig"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "client config path (default "+clientconfig.DefaultPath+")")
	testFlag := flag.String("test", "", "test id to start or resume")
	sessionFlag := flag.String("session", "", "session id to resume")
	serverFlag := flag.String("server", "", "API base URL (overrides server_url)")
	tokenFlag := flag.String("token", "", "taker token (overrides token)")
	flag.Parse()

	ref, err := parseRef(*testFlag, *sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 2
	}

	cfg, err := clientconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 1
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *tokenFlag != "" {
		cfg.Token = *tokenFlag
	}
	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "attempt: no token; set token in the config file or pass -token")
		return 2
	}

	logFile, err := openLog(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 1
	}
	defer logFile.Close()
	log := logger.Setup(cfg.LogLevel, "json", logFile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api, err := client.New(cfg.ServerURL, cfg.Token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 1
	}

	if ref.SessionID == uuid.Nil {
		start, code := confirmStart(ctx, api, ref.TestID, log)
		if !start {
			return code
		}
	}

	notices := make(chan attempt.Notice, 32)
	ctrl := attempt.NewController(attempt.Options{
		Backend:     api,
		Logger:      log,
		SaveTimeout: cfg.SaveTimeout,
		OnNotice: func(n attempt.Notice) {
			select {
			case notices <- n:
			default:
				log.Warn().Str("notice", string(n.Kind)).Msg("Notice dropped, UI is behind")
			}
		},
	})

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	err = ctrl.Load(loadCtx, ref)
	loadCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 1
	}
	ctrl.StartCountdown(ctx)

	final, err := tui.Run(tui.Options{
		Context:    ctx,
		Controller: ctrl,
		Results:    api,
		Notices:    notices,
	})

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if cerr := ctrl.Close(closeCtx); cerr != nil {
		log.Warn().Err(cerr).Int("unsaved", ctrl.View().Unsaved).Msg("Exited with unsaved answers")
	}
	closeCancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("UI exited with error")
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return 1
	}
	return report(final, ctrl, log)
}

func report(final tui.Model, ctrl *attempt.Controller, log zerolog.Logger) int {
	id := ctrl.SessionID()
	switch {
	case final.Result() != nil:
		fmt.Println(tui.RenderResult(*final.Result()))
	case final.Completed() || ctrl.State() == attempt.StateCompleted:
		fmt.Printf("Exam submitted. Your result is still being graded (session %s).\n", id)
	case ctrl.State() == attempt.StateError:
		fmt.Fprintf(os.Stderr, "attempt: %v\n", ctrl.Err())
		return 1
	default:
		log.Info().Str("session_id", id.String()).Msg("Attempt left open")
		fmt.Printf("Your answers are saved. Resume with: attempt -session %s\n", id)
	}
	return 0
}

// confirmStart shows the test's instructions before a new session begins.
// A running session resumes without asking again.
func confirmStart(ctx context.Context, api *client.Client, testID uuid.UUID, log zerolog.Logger) (bool, int) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	info, err := api.Instructions(reqCtx, testID)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return false, 1
	}

	switch info.SessionStatus {
	case model.SessionStatusInProgress:
		log.Info().Str("test_id", testID.String()).Msg("Resuming running session")
		return true, 0
	case model.SessionStatusCompleted:
		fmt.Fprintln(os.Stderr, "attempt: you have already submitted this test")
		return false, 1
	}

	agreed, err := tui.RunInstructions(ctx, *info)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, 0
		}
		fmt.Fprintf(os.Stderr, "attempt: %v\n", err)
		return false, 1
	}
	if !agreed {
		fmt.Println("Exam not started.")
		return false, 0
	}
	log.Info().Str("test_id", testID.String()).Msg("Instructions accepted")
	return true, 0
}

func parseRef(testID, sessionID string) (attempt.SessionRef, error) {
	var ref attempt.SessionRef
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return ref, fmt.Errorf("invalid -session: %w", err)
		}
		ref.SessionID = id
	}
	if testID != "" {
		id, err := uuid.Parse(testID)
		if err != nil {
			return ref, fmt.Errorf("invalid -test: %w", err)
		}
		ref.TestID = id
	}
	if ref.SessionID == uuid.Nil && ref.TestID == uuid.Nil {
		return ref, errors.New("pass -test or -session")
	}
	return ref, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
