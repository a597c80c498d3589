package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"micguard/internal/adapter/primary/web"
	"micguard/internal/adapter/secondary/instance"
	"micguard/internal/adapter/secondary/repository"
	"micguard/internal/config"
	"micguard/internal/domain"
	"micguard/internal/usecase"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var takeover bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "監視ループを起動（常駐）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if takeover {
				v.Set(config.KeyInstancePolicy, instance.PolicyTakeover)
			}
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			guard := instance.NewGuard(a.settings.LockPath, a.settings.InstancePolicy, os.Args[0], "run", nil, a.log)
			if err := guard.EnsureSingleInstance(ctx); err != nil {
				a.log.Errorf("startup aborted: %v", err)
				return err
			}
			defer guard.Release()

			return runMonitor(ctx, a)
		},
	}
	f := cmd.Flags()
	f.Int("volume", domain.DefaultMonitorConfig().TargetVolume, "目標入力音量(1-100)")
	f.Int("interval", 5, "ポーリング間隔(秒)")
	f.String("status-addr", "", "ステータスAPIのアドレス:ポート (例 127.0.0.1:7070)")
	f.BoolVar(&takeover, "takeover", false, "既存のインスタンスを終了させて引き継ぐ")
	bindFlags(v, f, map[string]string{
		config.KeyTargetVolume:    "volume",
		config.KeyPollingInterval: "interval",
		config.KeyStatusAddr:      "status-addr",
	})
	return cmd
}

// runMonitor wires the observers and blocks until ctx is cancelled.
func runMonitor(ctx context.Context, a *app) error {
	s := a.settings

	var (
		mon       *usecase.Monitor
		observers []domain.CycleObserver
		journal   *repository.Journal
	)

	if db, err := repository.OpenJournal(s.JournalPath); err != nil {
		a.log.Warnf("journal disabled: %v", err)
	} else {
		defer closeDB(db)
		journal = repository.NewJournal(db)
		observers = append(observers, journal)
	}

	status, err := repository.NewStatusFile(s.StatusFile, func() domain.Snapshot { return mon.Snapshot() })
	if err != nil {
		a.log.Warnf("status file disabled: %v", err)
	} else {
		observers = append(observers, status)
		defer func() {
			if err := status.Remove(); err != nil {
				a.log.Warnf("remove status file: %v", err)
			}
		}()
	}

	var hub *web.Hub
	if s.StatusAddr != "" {
		hub = web.NewHub()
		observers = append(observers, hub)
	}

	mon, err = a.newMonitor(usecase.WithObservers(observers...))
	if err != nil {
		return err
	}

	if hub != nil {
		var events web.EventSource
		if journal != nil {
			events = journal
		}
		srv := web.NewServer(s.StatusAddr, mon, mon, events, hub, a.log)
		go func() {
			a.log.Infof("status API: http://%s", s.StatusAddr)
			if err := srv.Start(); err != nil {
				a.log.Errorf("status API stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Printf("micguard started: target %d%%, every %s (%s backend)\n",
		s.Monitor.TargetVolume, s.Monitor.PollingInterval, a.backend.Name())
	err = mon.Run(ctx)
	fmt.Println("micguard shutting down...")
	return err
}

func newOnceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "監視サイクルを1回だけ実行して結果を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			var opts []usecase.Option
			if db, err := repository.OpenJournal(a.settings.JournalPath); err == nil {
				defer closeDB(db)
				opts = append(opts, usecase.WithObservers(repository.NewJournal(db)))
			}
			mon, err := a.newMonitor(opts...)
			if err != nil {
				return err
			}

			mon.Cycle(cmd.Context())
			return printJSON(cmd.OutOrStdout(), repository.NewStatusView(mon.Snapshot()))
		},
	}
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
