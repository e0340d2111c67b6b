package main

import (
	"flag"
	"runtime/debug"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"x402-gate-sol/internal/config"
	"x402-gate-sol/internal/logic/audit"
	"x402-gate-sol/internal/svc"
	"x402-gate-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/x402.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.Logger.ToLogOption()); err != nil {
		panic(err)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		panic(err)
	}
	defer serviceContext.Close()

	sg := zerosvc.NewServiceGroup()
	defer sg.Stop()

	if c.Audit.Enabled {
		opts := c.Audit.ToAuditOptions()
		if serviceContext.Progress != nil {
			opts.Progress = serviceContext.Progress
			sg.Add(serviceContext.Progress)
		}
		auditService, err := audit.NewService(
			audit.NewRpcSource(c.Audit.RpcEndpoint),
			serviceContext.Executor,
			serviceContext.Program,
			opts,
		)
		if err != nil {
			panic(err)
		}
		sg.Add(auditService)
	}

	logx.Infof("Starting x402 services, program=%s", serviceContext.Program.ID())

	// 阻塞直到收到退出信号
	sg.Start()
}
