package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"smart-mail-router/internal/app"
	"smart-mail-router/internal/config"
	"smart-mail-router/internal/secret"
)

func main() {
	cliApp := &cli.App{
		Name:  "smart-mail-router",
		Usage: "Route outgoing email to SMTP providers by subject",
		// Running without a command starts the server.
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API and the retention scheduler",
				Action: serveCommand,
			},
			{
				Name:   "purge-reports",
				Usage:  "Delete old reports once and exit",
				Action: purgeCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "older-than-days",
						Usage: "Delete reports older than `DAYS` instead of the configured retention",
					},
				},
			},
			{
				Name:   "validate-spam-key",
				Usage:  "Check the stored spam API key against the spam API",
				Action: validateSpamKeyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key",
						Usage: "Validate `KEY` instead of the stored key",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "Use `URL` instead of the stored endpoint",
					},
				},
			},
			{
				Name:      "encrypt-secret",
				Usage:     "Seal a credential with the configured encryption key",
				ArgsUsage: "[VALUE]",
				Action:    encryptSecretCommand,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}

func serveCommand(ctx *cli.Context) error {
	return app.Run()
}

func purgeCommand(ctx *cli.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	var deleted int64
	if ctx.IsSet("older-than-days") {
		deleted, err = a.Repo.DeleteReportsOlderThan(ctx.Context, ctx.Int("older-than-days"))
	} else {
		deleted, err = a.Repo.PurgeExpiredReports(ctx.Context)
	}
	if err != nil {
		return fmt.Errorf("failed to purge reports: %w", err)
	}

	fmt.Printf("Deleted %d reports\n", deleted)
	return nil
}

func validateSpamKeyCommand(ctx *cli.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	settings := a.Cache.Settings(ctx.Context)

	endpoint := ctx.String("endpoint")
	if endpoint == "" {
		endpoint = settings.AntiSpamEndPoint
	}
	key := ctx.String("key")
	if key == "" && settings.AntiSpamAPIKey != "" {
		key, err = a.Box.Decrypt(settings.AntiSpamAPIKey)
		if err != nil {
			return fmt.Errorf("failed to decrypt spam API key: %w", err)
		}
	}

	if err := a.Spam.ValidateKey(ctx.Context, key, endpoint); err != nil {
		return fmt.Errorf("spam API key is not valid: %w", err)
	}

	fmt.Println("Spam API key is valid")
	return nil
}

// encryptSecretCommand needs only the encryption key, so it skips the
// database and full config validation
func encryptSecretCommand(ctx *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	box, err := secret.NewBox(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}

	value := ctx.Args().First()
	if value == "" {
		fmt.Fprint(os.Stderr, "Value: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read value: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return errors.New("nothing to encrypt")
	}

	sealed, err := box.Encrypt(value)
	if err != nil {
		return err
	}

	fmt.Println(sealed)
	return nil
}

func bootstrap() (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
