package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/cxlctl/internal/client"
	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/config"
	"github.com/danmuck/cxlctl/internal/logging"
	"github.com/danmuck/cxlctl/internal/switchstate"
	"github.com/danmuck/cxlctl/internal/transport"
)

// bus is the connection a session runs on.
type bus interface {
	transport.Bus
	Close() error
}

type globalFlags struct {
	configPath    string
	address       string
	port          int
	verbosity     uint64
	verbosityHex  command.Opt[uint64]
	mctpVerbosity command.Opt[uint64]
	noInit        bool
}

type app struct {
	out   io.Writer
	flags globalFlags
	cfg   config.Config

	dial func(ctx context.Context, cfg transport.Config) (bus, error)
}

func newApp(out io.Writer) *app {
	return &app{
		out: out,
		dial: func(ctx context.Context, cfg transport.Config) (bus, error) {
			return transport.Dial(ctx, cfg)
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cxlctl",
		Short:         "CXL switch fabric management client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", config.DefaultPath(), "config file")
	pf.StringVarP(&a.flags.address, "tcp-address", "T", "", "switch TCP address")
	pf.IntVarP(&a.flags.port, "tcp-port", "P", 0, "switch TCP port")
	pf.VarP(&verbosityValue{mask: &a.flags.verbosity}, "verbosity", "V", "set verbosity bit (repeatable)")
	pf.VarP(hexFlag(&a.flags.verbosityHex, 64), "verbosity-hex", "X", "set all verbosity bits with a hex mask")
	pf.VarP(hexFlag(&a.flags.mctpVerbosity, 64), "mctp-verbosity", "Z", "set all transport verbosity bits with a hex mask")
	pf.BoolVarP(&a.flags.noInit, "no-init", "N", false, "do not query the switch state at start up")

	root.AddCommand(
		a.showCmd(),
		a.setCmd(),
		a.portCmd(),
		a.ldCmd(),
		a.aerCmd(),
		a.mctpCmd(),
		a.listCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// loadConfig resolves the config file, environment and global flags, then
// installs the logger.
func (a *app) loadConfig(cmd *cobra.Command) error {
	mustExist := cmd.Flags().Changed("config")
	cfg, err := config.Load(a.flags.configPath, mustExist)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("tcp-address") {
		cfg.Address = a.flags.address
	}
	if f.Changed("tcp-port") {
		cfg.Port = a.flags.port
	}
	if f.Changed("verbosity") || f.Changed("verbosity-hex") {
		cfg.Verbosity = a.flags.verbosity | a.flags.verbosityHex.Value
	}
	if a.flags.mctpVerbosity.Set {
		cfg.MCTPVerbosity = a.flags.mctpVerbosity.Value
	}
	if a.flags.noInit {
		cfg.NoInit = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.ConfigureRuntime(cfg.Verbosity)
	a.cfg = cfg
	return nil
}

// connect dials the switch and returns a session on a fresh cache. close
// is never nil.
func (a *app) connect(ctx context.Context) (*client.Session, func(), error) {
	tcfg, err := a.cfg.Transport()
	if err != nil {
		return nil, func() {}, err
	}
	b, err := a.dial(ctx, tcfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect %s: %w", tcfg.Endpoint(), err)
	}
	closeBus := func() {
		if err := b.Close(); err != nil {
			log.Debug().Err(err).Msg("close connection")
		}
	}
	return client.NewSession(b, switchstate.New(), a.out, a.cfg.Action()), closeBus, nil
}

func (a *app) initialize(ctx context.Context, s *client.Session) {
	if a.cfg.NoInit {
		return
	}
	if err := s.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("switch state initialization incomplete")
	}
}

// execute runs one operation. Parameters are checked before any connection
// is made.
func (a *app) execute(cmd *cobra.Command, op command.Operation, p command.Params) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()

	if op.Local() && a.cfg.NoInit {
		s := client.NewSession(nil, switchstate.New(), a.out, a.cfg.Action())
		_, err := s.Execute(ctx, op, p)
		return err
	}
	if !op.Local() {
		if _, err := command.Build(op, p); err != nil {
			return err
		}
	}

	s, closeBus, err := a.connect(ctx)
	defer closeBus()
	if err != nil {
		return err
	}
	a.initialize(ctx, s)

	res, err := s.Execute(ctx, op, p)
	if res != nil {
		log.Info().
			Str("op", op.String()).
			Stringer("family", res.Family).
			Str("opcode", res.Opcode).
			Bool("in_progress", res.Running()).
			Msg("operation complete")
	}
	return err
}
