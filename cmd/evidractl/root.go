package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gosuda/evidra/internal/evidence"
	"github.com/gosuda/evidra/internal/wizard"
)

type globalOptions struct {
	server   string
	token    string
	apiKey   string
	name     string
	stateDir string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "evidractl",
		Short:         "Submit and seal ESG evidence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("EVIDRA_SERVER", "http://localhost:8080"), "Evidra server URL")
	flags.StringVar(&opts.token, "token", os.Getenv("EVIDRA_TOKEN"), "session access token")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("EVIDRA_API_KEY"), "API key, used when no token is given")
	flags.StringVar(&opts.name, "name", "default", "wizard session name")
	flags.StringVar(&opts.stateDir, "state-dir", "", "where sessions are kept (default: user config dir)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newWizardCmd(opts))
	return root
}

// open resumes or starts the named wizard session.
func (o *globalOptions) open() (*wizard.Wizard, error) {
	dir := o.stateDir
	if dir == "" {
		var err error
		if dir, err = wizard.DefaultDir(); err != nil {
			return nil, err
		}
	}
	client := wizard.NewClient(o.server, wizard.Credentials{Token: o.token, APIKey: o.apiKey}, nil)
	return wizard.Open(o.name, client, wizard.NewFileStore(dir), evidence.NewGate(0, nil))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
