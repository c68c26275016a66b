// Package dms wires the /api/dms/* routes to the DMS logic
// service.
package dms

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/sentineld/guardian-core/internal/errorx"
	"github.com/sentineld/guardian-core/internal/svc"
	"github.com/sentineld/guardian-core/internal/types"
)

func CreateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSwitchRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := svcCtx.DMS.Create(r.Context(), &req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func CheckinHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CheckinRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := svcCtx.DMS.Checkin(r.Context(), &req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func ListHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.OwnerPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := svcCtx.DMS.List(r.Context(), req.Pubkey)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func CancelHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CancelPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		body := &types.CancelRequest{
			SenderPubkey: req.SenderPubkey,
			Signature:    req.Signature,
			Timestamp:    req.Timestamp,
		}
		resp, err := svcCtx.DMS.Cancel(r.Context(), req.SwitchID, body)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

// ProcessHandler authenticates via the X-Cron-Secret header rather than a
// signature — no user owns this call.
func ProcessHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-Cron-Secret")
		if secret == "" {
			httpx.ErrorCtx(r.Context(), w, errorx.AuthMissing("missing cron secret"))
			return
		}
		if !svcCtx.DMS.VerifyCronSecret(secret) {
			httpx.ErrorCtx(r.Context(), w, errorx.AuthInvalid())
			return
		}
		resp, err := svcCtx.DMS.Process(r.Context())
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
