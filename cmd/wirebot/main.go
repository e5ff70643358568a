package main

import (
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/EgorLis/wirebot/internal/bot"
	"github.com/EgorLis/wirebot/internal/settings"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "wirebot",
		Usage:   "dictionary-driven autoresponder bot for Wired chat servers",
		Version: versioninfo.Short(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the settings file (created with defaults when missing)",
			EnvVars: []string{"WIREBOT_CONFIG"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "enable debug logging",
			EnvVars: []string{"WIREBOT_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "dictionary",
			Usage:   "override dictionary_path from the settings file",
			EnvVars: []string{"WIREBOT_DICTIONARY"},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "connect to the server and serve the dictionary",
			Action: runBot,
		},
		{
			Name:      "check",
			Usage:     "load and validate the dictionary, then exit",
			ArgsUsage: "[dictionary]",
			Action:    runCheck,
		},
	}
	app.Action = runBot
	return app.Run(args)
}

func newLogger(cctx *cli.Context) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if cctx.Bool("debug") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	return cfg.Build()
}

func configPath(cctx *cli.Context) (string, error) {
	if p := cctx.String("config"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wirebot", "wirebot.yaml"), nil
}

// loadSettings читает (или создаёт) файл настроек и применяет --dictionary.
func loadSettings(cctx *cli.Context) (*settings.Store, settings.Settings, error) {
	path, err := configPath(cctx)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	st := settings.NewStore(path)
	if err := st.Load(); err != nil {
		return nil, settings.Settings{}, err
	}
	s := st.Get()
	if d := cctx.String("dictionary"); d != "" {
		s.DictionaryPath = d
	}
	s.DictionaryPath = st.Resolve(s.DictionaryPath)
	return st, s, nil
}

func runCheck(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		_, s, err := loadSettings(cctx)
		if err != nil {
			return err
		}
		path = s.DictionaryPath
	}
	d, err := bot.LoadDictionary(path)
	if err != nil {
		return err
	}
	fmt.Printf("dictionary: %s\n", path)
	fmt.Printf("rules:      %d\n", len(d.Rules))
	fmt.Printf("commands:   %d\n", len(d.Commands))
	fmt.Printf("watchers:   %d\n", len(d.Watchers))
	fmt.Printf("blake3:     %s\n", d.Sum)
	return nil
}
