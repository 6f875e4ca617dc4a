// Package main 提供 meshchat 命令行入口
//
// 从标准输入逐行读取并发布到主题，收到的消息打印到标准输出。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-meshchat"
	"github.com/dep2p/go-meshchat/config"
	"github.com/dep2p/go-meshchat/internal/protocol/pubsub"
	"github.com/dep2p/go-meshchat/internal/util/logger"
)

var log = logger.Logger("cmd")

// 命令行参数优先于环境变量，环境变量优先于配置文件
var (
	configFile   = flag.String("config", "", "配置文件路径（JSON）")
	listen       = flag.String("listen", "", "监听地址，逗号分隔")
	bootstrap    = flag.String("bootstrap", "", "引导地址，逗号分隔，支持 /dnsaddr")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	dataDir      = flag.String("data-dir", "", "数据目录")
	enableMDNS   = flag.Bool("mdns", false, "启用局域网发现")
	metricsAddr  = flag.String("metrics", "", "Prometheus 指标地址，例如 :9100")
	topic        = flag.String("topic", meshchat.DefaultTopic, "聊天主题")
	logFile      = flag.String("log", "", "日志文件路径，默认输出到 stderr")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("打开日志文件: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	opts := []meshchat.Option{meshchat.WithConfig(cfg)}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, meshchat.WithMetricsRegisterer(reg))
		defer shutdown(serveMetrics(cfg.Metrics.ListenAddr, reg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := meshchat.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		if err := node.Stop(); err != nil {
			log.Warn("关闭节点出错", "err", err)
		}
	}()

	printNodeInfo(node)

	err = node.Subscribe(*topic, func(from string, data []byte) {
		if from == node.LocalPeerID() {
			return
		}
		fmt.Printf("[%s] %s\n", short(from), data)
	})
	if err != nil {
		return fmt.Errorf("订阅 %s: %w", *topic, err)
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines, cfg.PubSub.MaxMessageSize)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n正在关闭节点...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			publish(node, line)
		}
	}
}

// loadConfig 配置文件 → 环境变量 → 命令行参数
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if isFlagSet("listen") {
		cfg.Transport.ListenAddrs = splitList(*listen)
	}
	if isFlagSet("bootstrap") {
		cfg.Discovery.Bootstrap = splitList(*bootstrap)
	}
	if isFlagSet("identity") {
		cfg.Identity.KeyFile = *identityFile
	}
	if isFlagSet("data-dir") {
		cfg.Storage.DataDir = *dataDir
	}
	if isFlagSet("mdns") {
		cfg.Discovery.EnableMDNS = *enableMDNS
	}
	if isFlagSet("metrics") {
		cfg.Metrics.Enabled = *metricsAddr != ""
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	return cfg, cfg.Validate()
}

func publish(node *meshchat.Node, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	err := node.Publish(*topic, []byte(line))
	switch {
	case err == nil:
	case errors.Is(err, pubsub.ErrNoPeers):
		fmt.Fprintln(os.Stderr, "（暂无在线节点，消息未送出）")
	default:
		fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
	}
}

// readLines 单行超过 max 字节时停止读取
func readLines(r io.Reader, out chan<- string, max int) {
	defer close(out)
	sc := newLineScanner(r, max)
	for sc.Scan() {
		out <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		log.Warn("读取标准输入出错", "err", err)
	}
}

func newLineScanner(r io.Reader, max int) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	// 末尾换行符也占缓冲区
	sc.Buffer(make([]byte, 0, min(max+1, 64<<10)), max+1)
	return sc
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("指标服务退出", "addr", addr, "err", err)
		}
	}()
	log.Info("指标服务已启动", "addr", addr)
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func printNodeInfo(node *meshchat.Node) {
	fmt.Printf("节点 ID: %s\n", node.LocalPeerID())
	addrs := node.ListenAddrs()
	if len(addrs) == 0 {
		fmt.Println("未监听任何地址（仅拨出）")
	}
	for _, a := range addrs {
		fmt.Printf("  %s\n", a)
	}
	fmt.Printf("主题: %s，输入文字回车发送，Ctrl+C 退出\n", *topic)
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
