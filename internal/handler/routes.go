// RegisterHandlers wires every route onto the go-zero rest.Server,
// written by hand in the shape goctl's generated RegisterHandlers
// normally takes.
package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	dmshandler "github.com/sentineld/guardian-core/internal/handler/dms"
	recoveryhandler "github.com/sentineld/guardian-core/internal/handler/recovery"
	"github.com/sentineld/guardian-core/internal/svc"
)

func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{Method: http.MethodPost, Path: "/api/recovery/distribute", Handler: recoveryhandler.DistributeHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/recovery/guardians/:pubkey", Handler: recoveryhandler.GuardiansHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/recovery/guardianships/:pubkey", Handler: recoveryhandler.GuardianshipsHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/recovery/request", Handler: recoveryhandler.RequestSessionHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/recovery/session/:id/status", Handler: recoveryhandler.SessionStatusHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/recovery/session/:id/approve", Handler: recoveryhandler.ApproveHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/recovery/session/:id/shares", Handler: recoveryhandler.SharesHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/api/recovery/revoke", Handler: recoveryhandler.RevokeHandler(svcCtx)},

		{Method: http.MethodPost, Path: "/api/dms/create", Handler: dmshandler.CreateHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/dms/checkin", Handler: dmshandler.CheckinHandler(svcCtx)},
		{Method: http.MethodGet, Path: "/api/dms/list/:pubkey", Handler: dmshandler.ListHandler(svcCtx)},
		{Method: http.MethodDelete, Path: "/api/dms/:switchId", Handler: dmshandler.CancelHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/dms/process", Handler: dmshandler.ProcessHandler(svcCtx)},
	})
}
