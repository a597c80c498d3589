package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"micguard/internal/logging"
)

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "サブコマンドを対話的に実行できるシェルを起動",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveShell(prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "micguard> ", "シェルのプロンプト文字列")
	return cmd
}

func runInteractiveShell(prompt string) error {
	historyFile := filepath.Join(os.TempDir(), "micguard-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	sessionConfig := cfgPath
	if verbosity > 0 && sessionLevel == nil {
		level := logging.LevelDebug
		sessionLevel = &level
	}
	fmt.Println("対話型シェルを開始します。'help' で使い方、'exit' で終了。")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println()
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "exit", "quit":
			fmt.Println("Bye!")
			return nil
		case "help":
			printShellHelp()
			continue
		}
		tokens, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("Parse error: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "log":
			if err := handleShellLog(tokens[1:]); err != nil {
				fmt.Printf("log: %v\n", err)
			}
			continue
		case "shell":
			fmt.Println("すでにシェル内です。他のコマンドを入力するか 'exit' で終了してください。")
			continue
		case "run":
			fmt.Println("run はシェル外で起動してください (Ctrl+C で停止できなくなるため)。")
			continue
		}

		if err := executeArgs(append([]string{"--config=" + sessionConfig}, tokens...)); err != nil {
			fmt.Printf("command error: %v\n", err)
		}
	}
}

func executeArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

// handleShellLog adjusts the level applied to every command run from the shell.
func handleShellLog(args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		vcount int
		level  string
		show   bool
	)
	fs.CountVarP(&vcount, "verbose", "v", "debugレベルにする")
	fs.StringVar(&level, "level", "", "指定レベル(error|warn|info|debug)")
	fs.BoolVarP(&show, "show", "s", false, "現在のレベルを表示")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case level != "":
		l, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		sessionLevel = &l
	case vcount > 0:
		l := logging.LevelDebug
		sessionLevel = &l
	default:
		fmt.Printf("log level: %s\n", currentLevelName())
		return nil
	}
	fmt.Printf("log level set to %s\n", currentLevelName())
	return nil
}

func currentLevelName() string {
	if sessionLevel == nil {
		return logging.LevelToString(logging.LevelFromVerbose(verbosity > 0))
	}
	return logging.LevelToString(*sessionLevel)
}

func printShellHelp() {
	fmt.Println(`利用可能な入力例:
  once                        # 監視サイクルを1回実行
  devices                     # デバイス一覧と自動選択結果
  get                         # 現在の入力音量
  set 80                      # 入力音量を80%に設定
  config show                 # 有効な設定を表示
  history -n 10               # 直近10件の補正履歴
  status                      # 常駐プロセスの状態
  log -v                      # ログ出力を詳細化
  log --level warn            # レベルを指定
  log --show                  # 現在のログレベルを確認
  exit / quit                 # シェル終了`)
}
