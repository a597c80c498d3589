package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"micguard/internal/adapter/secondary/repository"
	"micguard/internal/config"
	"micguard/internal/logging"
)

func newDevicesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "オーディオデバイス一覧と自動選択結果を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			devs, err := a.backend.Devices(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDIRECTION\tDEFAULT")
			for _, d := range devs {
				def := ""
				if d.DefaultCapture {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Direction, def)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			dev, err := a.resolver.Resolve(cmd.Context(), a.settings.Monitor.TargetDeviceID)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n選択: なし (%v)\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n選択: %s [%s]\n", dev, dev.Method)
			return nil
		},
	}
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "対象デバイスの現在の入力音量を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			mon, err := a.newMonitor()
			if err != nil {
				return err
			}
			dev, vol, err := mon.ReadNow(cmd.Context())
			if err != nil && dev.ID == "" {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (target %d%%)\n", dev, vol, a.settings.Monitor.TargetVolume)
			return err
		},
	}
}

func newSetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set [percent]",
		Short: "入力音量を即時設定 (未指定なら目標値)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent := -1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("音量は1-100の整数で指定してください: %q", args[0])
				}
				percent = n
			}

			a, err := loadApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			mon, err := a.newMonitor()
			if err != nil {
				return err
			}
			dev, err := mon.ApplyNow(cmd.Context(), percent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s を設定しました\n", dev)
			return nil
		},
	}
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "設定の表示・初期化を行うサブコマンド",
	}
	cmd.AddCommand(newConfigShowCmd(v), newConfigInitCmd())
	return cmd
}

func newConfigShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "有効な設定(YAML)を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			out, err := config.RenderYAML(s)
			if err != nil {
				return err
			}
			if s.ConfigFile != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", s.ConfigFile)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# defaults (no config file)")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "既定値で設定ファイルを作成",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(config.NewViper(config.DefaultDir()), "")
			if err != nil {
				return err
			}
			if err := config.WriteFile(cfgPath, s, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "設定ファイルを作成しました: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "既存ファイルを上書き")
	return cmd
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "補正・失敗の履歴を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			db, err := repository.OpenJournal(s.JournalPath)
			if err != nil {
				return err
			}
			defer closeDB(db)

			events, err := repository.NewJournal(db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), events)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "履歴はありません")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOUTCOME\tDEVICE\tFAILURES\tMESSAGE")
			for _, e := range events {
				device := e.DeviceName
				if device == "" {
					device = e.DeviceID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					e.OccurredAt.Local().Format(logging.TimeLayout), e.Outcome, device, e.Failures, e.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "表示件数")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSONで出力")
	return cmd
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "稼働中の監視ループの状態を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			f, err := repository.NewStatusFile(s.StatusFile, nil)
			if err != nil {
				return err
			}
			st, err := f.Load()
			if errors.Is(err, repository.ErrNoStatus) {
				fmt.Fprintln(cmd.OutOrStdout(), "監視ループは起動していません")
				return nil
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if st.LastPollTime != nil && time.Since(*st.LastPollTime) > staleAfter(st) {
				fmt.Fprintf(os.Stderr, "warning: last poll %s ago; pid %d may have stopped\n",
					time.Since(*st.LastPollTime).Round(time.Second), st.PID)
			}
			return nil
		},
	}
}

// staleAfter is how long a status may go without a poll before it is suspect.
func staleAfter(st repository.StatusView) time.Duration {
	wait := st.PollingIntervalSeconds
	if st.LastCycle != nil {
		wait = max(wait, st.LastCycle.SleepSeconds)
	}
	return time.Duration(wait*float64(time.Second)) + time.Minute
}
