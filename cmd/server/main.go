package main

import (
	"github.com/finsight/pulse/internal/server"
	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
