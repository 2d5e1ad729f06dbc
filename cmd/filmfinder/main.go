package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/John-Robertt/filmfinder/internal/config"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runCommand(ctx, cmd, args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// command 描述一个子命令：参数个数、是否允许 --addr、以及执行函数。
type command struct {
	name    string
	usage   string
	nargs   int
	allowed map[string]bool
	run     func(ctx context.Context, rt *runtime, args []string, in io.Reader) int
}

var commands = map[string]command{
	"popular": {
		name:  "popular",
		usage: "filmfinder popular [flags]",
		run:   popularCmd,
	},
	"recommend": {
		name:  "recommend",
		usage: "filmfinder recommend <title> [flags]",
		nargs: 1,
		run:   recommendCmd,
	},
	"suggest": {
		name:  "suggest",
		usage: "filmfinder suggest <query> [flags]",
		nargs: 1,
		run:   suggestCmd,
	},
	"info": {
		name:  "info",
		usage: "filmfinder info <imdb_id> [flags]",
		nargs: 1,
		run:   infoCmd,
	},
	"search": {
		name:  "search",
		usage: "filmfinder search [flags]   (从 stdin 逐行读取输入)",
		run:   searchCmd,
	},
	"serve": {
		name:    "serve",
		usage:   "filmfinder serve [--addr host:port] [flags]",
		allowed: map[string]bool{"--addr": true},
		run:     serveCmd,
	},
}

func runCommand(ctx context.Context, cmd command, args []string, in io.Reader, stdout, stderr io.Writer) int {
	for _, a := range args {
		if isHelp(a) {
			printCommandUsage(stdout, cmd)
			return 0
		}
	}

	ca, err := parseArgs(args, cmd.allowed)
	if err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		printCommandUsage(stderr, cmd)
		return 2
	}
	if len(ca.Positional) != cmd.nargs {
		fmt.Fprintf(stderr, "参数错误：%s 需要 %d 个参数，实际 %d 个\n\n", cmd.name, cmd.nargs, len(ca.Positional))
		printCommandUsage(stderr, cmd)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cfg, err := config.LoadEffective(cwd, ca.CLI)
	if err != nil {
		fmt.Fprintf(stderr, "配置错误（%s）：%v\n", config.Code(err), err)
		return 1
	}

	rt, err := newRuntime(cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "初始化失败：%v\n", err)
		return 1
	}
	return cmd.run(ctx, rt, ca.Positional, in)
}

// cliArgs 是解析后的命令行：config.CLIArgs 保留“是否显式指定”，其余为位置参数。
type cliArgs struct {
	CLI        config.CLIArgs
	Positional []string
}

func parseArgs(args []string, extra map[string]bool) (cliArgs, error) {
	ca := cliArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			ca.Positional = append(ca.Positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "--") || a == "-" {
			if strings.HasPrefix(a, "-") && a != "-" {
				return cliArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			ca.Positional = append(ca.Positional, a)
			continue
		}

		name, val, hasVal := strings.Cut(a, "=")
		if !hasVal {
			if i+1 >= len(args) {
				return cliArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "--config":
			if strings.TrimSpace(val) == "" {
				return cliArgs{}, fmt.Errorf("--config 不能为空")
			}
			ca.CLI.ConfigPath = val
		case "--base-url":
			ca.CLI.BaseURL = val
			ca.CLI.BaseURLSet = true
		case "--concurrency":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return cliArgs{}, fmt.Errorf("--concurrency 必须是正整数，实际是 %q", val)
			}
			ca.CLI.Concurrency = n
			ca.CLI.ConcurrencySet = true
		case "--policy":
			switch val {
			case config.PolicyPartial, config.PolicyAllOrNothing:
			default:
				return cliArgs{}, fmt.Errorf("--policy 只能是 %s 或 %s，实际是 %q", config.PolicyPartial, config.PolicyAllOrNothing, val)
			}
			ca.CLI.Policy = val
			ca.CLI.PolicySet = true
		case "--addr":
			if !extra["--addr"] {
				return cliArgs{}, fmt.Errorf("未知参数 %q", name)
			}
			ca.CLI.Addr = val
			ca.CLI.AddrSet = true
		default:
			return cliArgs{}, fmt.Errorf("未知参数 %q", name)
		}
	}
	return ca, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  filmfinder <command> [args] [flags]

命令：
  popular              热门电影（首页）
  recommend <title>    基于某部电影的推荐（结果页）
  suggest <query>      标题联想
  info <imdb_id>       电影详情（上映日期、类型、观看渠道）
  search               交互式搜索：每行替换输入，:N 选择第 N 条联想，空行提交
  serve                启动网页前端

通用参数：
  --config <path>         配置文件（默认查找 ./filmfinder.yaml）
  --base-url <url>        后端地址（默认 http://127.0.0.1:8000）
  --concurrency <n>       元数据抓取并发（默认 6）
  --policy <p>            partial | all_or_nothing（默认 partial）
  -h, --help              显示帮助

stdout 是终端时输出彩色卡片，否则只输出一个 JSON 文档。
`)
}

func printCommandUsage(w io.Writer, cmd command) {
	fmt.Fprintf(w, "用法：\n  %s\n\n使用 \"filmfinder --help\" 查看通用参数。\n", cmd.usage)
}
