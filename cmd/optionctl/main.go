package main

import (
	"OptionLedger/internal/ingestion"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

func usage() {
	fmt.Println("Usage: optionctl [flags] <operate|price|admin> <file.json|->")
	fmt.Println("  operate - submit an action batch")
	fmt.Println("  price   - submit a pricer report")
	fmt.Println("  admin   - submit a privileged command")
	fmt.Println()
	fmt.Println("The payload is validated locally, then published to the command stream.")
	fmt.Println()
	flag.PrintDefaults()
}

func main() {
	natsURL := flag.String("nats", envOrDefault("OPTIONLEDGER_NATS_URL", "nats://localhost:4222"), "NATS URL")
	prefix := flag.String("prefix", envOrDefault("OPTIONLEDGER_COMMAND_SUBJECT", "optionledger.cmd"), "command subject prefix")
	timeout := flag.Duration("timeout", 10*time.Second, "publish timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	verb, path := flag.Arg(0), flag.Arg(1)

	data, err := readPayload(path)
	if err != nil {
		log.Fatalf("FATAL: read %s: %v", path, err)
	}

	cmd, err := ingestion.ParseCommand(*prefix, ingestion.RawEvent{
		Subject:   *prefix + "." + verb,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Fatalf("FATAL: invalid %s payload: %v", verb, err)
	}

	nc, js, err := ingestion.ConnectNATS(*natsURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	seq, err := ingestion.NewInjector(js, *prefix).Inject(ctx, cmd)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Printf("INFO: %s command accepted at stream sequence %d", cmd.Type, seq)
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
