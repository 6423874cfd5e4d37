package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/infra/auth/jwt"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

const (
	ServiceName      = "im-chat-hub"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time chat hub: rooms, direct messages and activity notifications over websocket",
		Version: fmt.Sprintf("%s (%s@%s, %s)", version, branch, commit, commitDate),
		Commands: []*cli.Command{
			serverCmd(),
			monitorCmd(),
			tokenCmd(),
		},
	}

	return app.Run(os.Args)
}

var configFileFlag = &cli.StringFlag{
	Name:    "config_file",
	Usage:   "Path to the configuration file",
	EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the chat hub",
		Flags: []cli.Flag{
			configFileFlag,
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "Insert demo users and rooms before serving",
			},
			&cli.StringFlag{Name: "http.addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "log.level", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "pubsub.driver", Usage: "Event bus driver (gochannel, amqp)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg, c.Bool("seed"))

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

// tokenCmd signs a development token with the configured secret.
func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a signed token for a user",
		Flags: []cli.Flag{
			configFileFlag,
			&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			token, err := jwt.NewFromConfig(cfg).Issue(
				model.Identity{UserID: c.String("user"), Username: c.String("name")},
				c.Duration("ttl"),
			)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}

// loadConfig mirrors the CLI overrides into the pflag set the config layer binds.
func loadConfig(c *cli.Context) (*config.Config, error) {
	flags := config.Flags()
	var setErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if setErr == nil && c.IsSet(f.Name) {
			setErr = flags.Set(f.Name, c.String(f.Name))
		}
	})
	if setErr != nil {
		return nil, setErr
	}
	return config.LoadConfig(c.String("config_file"), flags)
}
