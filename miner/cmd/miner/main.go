package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	mapp "github.com/you-humble/ubattery/miner/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	a := mapp.New(ctx)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("miner:", err)
	}
}
