package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/eleven-am/warden/internal/config"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/store"
	"github.com/eleven-am/warden/pkg/warden"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string

	Config *config.Config
}

var ValidFormats = []string{"text", "json"}

// Version is set at build time.
var Version = "dev"

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Compile object based flow rules into Network Firewall rule groups",
		Long: `warden resolves flow rules written against cloud objects (instances,
security groups, subnets, auto-scaling groups, tagged resources) into concrete
addresses and keeps stateful Network Firewall rule groups in sync with them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level from the config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	path := config.Path(o.ConfigPath)
	cfg, err := config.Load(path, o.ConfigPath != "")
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

// openStore opens the rule store without building the rest of the service.
// AWS credentials are only loaded for the dynamodb driver.
func (o *RootOptions) openStore(ctx context.Context) (store.Store, error) {
	var awsCfg aws.Config
	if o.Config.Store.Driver == store.DriverDynamoDB {
		var err error
		if awsCfg, err = warden.LoadAWSConfig(ctx, o.Config); err != nil {
			return nil, err
		}
	}
	return warden.OpenStore(o.Config, awsCfg)
}
