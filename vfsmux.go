package main

import (
	"os"

	"github.com/macos-fuse-t/go-vfsmux/config"
	"github.com/macos-fuse-t/go-vfsmux/example"
	log "github.com/sirupsen/logrus"
)

func main() {
	homeDir, _ := os.UserHomeDir()
	cfg, err := config.NewConfig([]string{
		"vfsmux.ini",
		homeDir + "/.fuse-t/vfsmux.ini",
	}, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := example.Run(cfg); err != nil {
		log.Fatalf("vfsmux: %v", err)
	}
}
