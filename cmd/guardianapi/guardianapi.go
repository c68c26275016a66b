// Command guardianapi boots the go-zero rest.Server, registers the
// recovery and dms route groups, and installs the uniform
// {error: "..."} error translator.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/sentineld/guardian-core/internal/config"
	"github.com/sentineld/guardian-core/internal/errorx"
	"github.com/sentineld/guardian-core/internal/handler"
	"github.com/sentineld/guardian-core/internal/svc"
)

var configFile = flag.String("f", "etc/guardianapi.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	httpx.SetErrorHandlerCtx(func(_ context.Context, err error) (int, any) {
		status, msg := errorx.StatusAndMessage(err)
		return status, map[string]string{"error": msg}
	})

	server := rest.MustNewServer(c.RestConf, rest.WithCors("*"))
	defer server.Stop()

	ctx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, ctx)

	fmt.Printf("Starting guardian-core at %s:%d...\n", c.Host, c.Port)
	server.Start()
}
