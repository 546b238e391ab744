// Command qrctl manages a QR code history from the terminal. It drives the
// same sync controller as the gateway and prints the resulting state as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sundayezeilo/qrhistory/internal/config"
	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/qrapi"
	"github.com/sundayezeilo/qrhistory/internal/qrsync"
	"github.com/sundayezeilo/qrhistory/internal/qrview"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	if err := newCommand(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// session is what every subcommand works with.
type session struct {
	client     *qrapi.Client
	controller qrsync.Controller
	presenter  *qrview.Presenter
	out        io.Writer
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "qrctl",
		Usage:     "list, create and delete QR codes in a remote history",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "QR code collection endpoint",
				Sources: cli.EnvVars("QR_API_BASE_URL"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "overall timeout per API request",
				Value:   qrapi.DefaultTimeout,
				Sources: cli.EnvVars("QR_API_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-pages",
				Usage:   "maximum number of list pages to follow",
				Value:   qrapi.DefaultMaxPages,
				Sources: cli.EnvVars("QR_API_MAX_PAGES"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "print the full history",
				Action: withSession(stderr, list),
			},
			{
				Name:      "create",
				Usage:     "create a QR code for a link",
				ArgsUsage: "<link>",
				Action:    withSession(stderr, create),
			},
			{
				Name:      "delete",
				Usage:     "delete a QR code by id",
				ArgsUsage: "<id>",
				Action:    withSession(stderr, remove),
			},
			{
				Name:      "download",
				Usage:     "save a QR code image to a file",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "output path (default: timestamped name in the working directory)",
					},
				},
				Action: withSession(stderr, download),
			},
			{
				Name:      "preview",
				Usage:     "print the preview image URL for a link",
				ArgsUsage: "<link>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "preview-url",
						Value:   qrview.DefaultPreviewBaseURL,
						Sources: cli.EnvVars("PREVIEW_BASE_URL"),
					},
					&cli.IntFlag{
						Name:    "size",
						Value:   qrview.DefaultPreviewSize,
						Sources: cli.EnvVars("PREVIEW_SIZE"),
					},
				},
				Action: preview,
			},
		},
	}
}

func withSession(stderr io.Writer, fn func(context.Context, *cli.Command, *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		level := cmd.String("log-level")
		if err := config.ValidateLogLevel(level); err != nil {
			return err
		}
		logger := newLogger(stderr, level)

		if cmd.String("api-url") == "" {
			return cli.Exit("missing --api-url (or QR_API_BASE_URL)", 2)
		}
		client, err := qrapi.New(qrapi.Config{
			BaseURL:  cmd.String("api-url"),
			Timeout:  cmd.Duration("timeout"),
			MaxPages: int(cmd.Int("max-pages")),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		s := &session{
			client: client,
			controller: qrsync.New(client, &qrsync.Config{
				Logger: logger,
			}),
			presenter: qrview.NewPresenter(qrview.PresenterConfig{Images: client}),
			out:       cmd.Root().Writer,
		}
		defer s.controller.Close()
		return fn(ctx, cmd, s)
	}
}

func list(ctx context.Context, cmd *cli.Command, s *session) error {
	if err := s.controller.Refresh(ctx); err != nil {
		return cliError(err)
	}
	return s.print(s.presenter.Build(s.controller.State()).Records)
}

func create(ctx context.Context, cmd *cli.Command, s *session) error {
	link := strings.Join(cmd.Args().Slice(), " ")
	rec, err := s.controller.CreateRecord(ctx, link)
	if err != nil {
		return cliError(err)
	}
	return s.print(qrview.CreateResponse{
		Record: s.presenter.Build(qrsync.State{Records: []qrapi.Record{rec}}).Records[0],
		State:  s.presenter.Build(s.controller.State()),
	})
}

func remove(ctx context.Context, cmd *cli.Command, s *session) error {
	id := qrapi.ID(cmd.Args().First())
	if id == "" {
		return cli.Exit("delete: missing <id>", 2)
	}
	if err := s.controller.Refresh(ctx); err != nil {
		return cliError(err)
	}
	if err := s.controller.DeleteRecord(ctx, id); err != nil {
		return cliError(err)
	}
	return s.print(s.presenter.Build(s.controller.State()))
}

func download(ctx context.Context, cmd *cli.Command, s *session) error {
	id := qrapi.ID(cmd.Args().First())
	if id == "" {
		return cli.Exit("download: missing <id>", 2)
	}
	if err := s.controller.Refresh(ctx); err != nil {
		return cliError(err)
	}

	var rec *qrapi.Record
	for _, r := range s.controller.State().Records {
		if r.ID == id {
			rec = &r
			break
		}
	}
	if rec == nil {
		return cli.Exit(fmt.Sprintf("download: no record with id %s", id), 1)
	}

	path := cmd.String("out")
	if path == "" {
		path = qrview.DownloadName(time.Now())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	n, err := s.client.DownloadImage(ctx, *rec, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return cliError(err)
	}

	return s.print(map[string]any{"id": id, "path": path, "bytes": n})
}

func preview(ctx context.Context, cmd *cli.Command) error {
	link := strings.Join(cmd.Args().Slice(), " ")
	p := qrview.NewPresenter(qrview.PresenterConfig{
		PreviewBaseURL: cmd.String("preview-url"),
		PreviewSize:    int(cmd.Int("size")),
	})
	u := p.PreviewURL(link)
	if u == "" {
		return cli.Exit("preview: missing <link>", 2)
	}
	_, err := fmt.Fprintln(cmd.Root().Writer, u)
	return err
}

func (s *session) print(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliError turns controller errors into user-facing exit errors. Input
// problems exit with 2, everything else with 1.
func cliError(err error) error {
	switch errx.KindOf(err) {
	case errx.Invalid, errx.Validation:
		return cli.Exit(qrsync.UserMessage(err), 2)
	default:
		return cli.Exit(qrsync.UserMessage(err), 1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
