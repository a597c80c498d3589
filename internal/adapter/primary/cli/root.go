package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"micguard/internal/adapter/secondary/volume"
	"micguard/internal/config"
	"micguard/internal/domain"
	"micguard/internal/logging"
	"micguard/internal/usecase"
)

var (
	cfgPath   string
	verbosity int

	// sessionLevel carries the shell's `log` setting into every command it runs.
	sessionLevel *logging.Level
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	v := config.NewViper(config.DefaultDir())

	cmd := &cobra.Command{
		Use:           "micguard",
		Short:         "マイク入力音量を監視し、下がったら目標値へ戻す常駐ツール",
		Long:          "キャプチャデバイスの入力音量を定期的に確認し、設定値より低ければ即座に補正します。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", config.DefaultPath(), "設定ファイルのパス")
	pf.CountVarP(&verbosity, "verbose", "v", "ロギングを詳細化 (-v でdebug)")
	pf.String("device", "", "対象デバイスIDの部分文字列 (未指定なら自動検出)")
	pf.String("backend", "auto", "音量バックエンド (auto|helper|pactl|osascript|memory)")
	pf.String("helper", config.DefaultHelperPath(), "ヘルパー実行ファイルのパス")
	pf.String("log-file", "", "ログファイルのパス")
	bindFlags(v, pf, map[string]string{
		config.KeyTargetDeviceID: "device",
		config.KeyBackend:        "backend",
		config.KeyHelperPath:     "helper",
		config.KeyLogFile:        "log-file",
	})

	cmd.AddCommand(
		newRunCmd(v),
		newOnceCmd(v),
		newDevicesCmd(v),
		newGetCmd(v),
		newSetCmd(v),
		newConfigCmd(v),
		newHistoryCmd(v),
		newStatusCmd(v),
		newShellCmd(),
	)
	return cmd
}

// app holds the adapters wired from the loaded settings.
type app struct {
	settings config.Settings
	log      *logging.Logger
	backend  domain.AudioSystem
	resolver *usecase.DeviceResolver
}

// loadSettings merges flags, environment, file and defaults.
func loadSettings(v *viper.Viper) (config.Settings, error) {
	if verbosity > 0 {
		v.Set(config.KeyVerbose, true)
	}
	return config.Load(v, cfgPath)
}

// loadApp loads settings and wires logger, backend and resolver.
func loadApp(v *viper.Viper) (*app, error) {
	s, err := loadSettings(v)
	if err != nil {
		return nil, err
	}

	opts := logging.Options{Path: s.LogFile, Verbose: s.Monitor.Verbose}
	if verbosity > 0 {
		opts.Console = os.Stderr
	}
	log, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	if sessionLevel != nil {
		log.SetLevel(*sessionLevel)
	}

	backend := volume.Detect(volume.DetectOptions{
		Backend:    s.Backend,
		HelperPath: s.HelperPath,
		ScratchDir: os.TempDir(),
		Config:     s.Monitor,
	})
	log.Debugf("using %s backend (config %q)", backend.Name(), s.ConfigFile)

	return &app{
		settings: s,
		log:      log,
		backend:  backend,
		resolver: usecase.NewDeviceResolver(backend, volume.NewRegistryStore(), log),
	}, nil
}

func (a *app) newMonitor(opts ...usecase.Option) (*usecase.Monitor, error) {
	return usecase.NewMonitor(a.settings.Monitor, a.resolver, a.backend, a.log, opts...)
}

func (a *app) close() {
	_ = a.log.Sync()
}

// bindFlags binds flag names to config keys so set flags win over file and env.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}
