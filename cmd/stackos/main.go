package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/stackos"
	"github.com/viant/stackos/internal/script"
)

func main() {
	configURL := flag.String("config", "", "config URL (yaml)")
	imagesURL := flag.String("images", "", "program image store URL")
	scriptURL := flag.String("script", "", "monitor script URL, stdin when empty")
	boot := flag.String("boot", "", "comma separated programs to boot")
	traceFile := flag.String("trace", "", "write trap spans to file")
	flag.Parse()

	ctx := context.Background()
	if err := run(ctx, *configURL, *imagesURL, *scriptURL, *boot, *traceFile); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configURL, imagesURL, scriptURL, boot, traceFile string) error {
	fs := afs.New()
	config := stackos.DefaultConfig()
	if configURL != "" {
		loaded, err := stackos.LoadConfig(ctx, fs, configURL)
		if err != nil {
			return err
		}
		config = loaded
	}
	if imagesURL != "" {
		config.Loader.BaseURL = imagesURL
	}
	options := []stackos.Option{stackos.WithConfig(config), stackos.WithFs(fs), stackos.WithOutput(os.Stdout)}
	if traceFile != "" {
		options = append(options, stackos.WithTracing("stackos", "0.1.0", traceFile))
	}
	srv, err := stackos.New(options...)
	if err != nil {
		return err
	}
	runtime := srv.Runtime()
	defer runtime.Shutdown(ctx)

	runner := script.New(runtime, os.Stdout)
	if boot != "" {
		command := &script.Command{Name: "boot", Args: strings.Split(boot, ",")}
		if err = runner.Execute(ctx, command); err != nil {
			return err
		}
	}
	if scriptURL != "" {
		data, err := fs.DownloadWithURL(ctx, scriptURL)
		if err != nil {
			return fmt.Errorf("failed to download script %v: %w", scriptURL, err)
		}
		commands, err := script.ParseScript(data)
		if err != nil {
			return err
		}
		return runner.Run(ctx, commands)
	}
	return interactive(ctx, runner, runtime)
}

func interactive(ctx context.Context, runner *script.Runner, runtime *stackos.Runtime) error {
	scanner := bufio.NewScanner(os.Stdin)
	for lineNo := 1; !runtime.Halted(); lineNo++ {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		command, err := script.Parse(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		if command == nil {
			continue
		}
		command.Line = lineNo
		if err = runner.Execute(ctx, command); err != nil {
			fmt.Println(err)
		}
	}
	return scanner.Err()
}
