// Package remote is the boundary to the server of record: one method per RPC,
// the JSON wire format shared with the server, and an HTTP client.
package remote

import (
	"context"

	"actas-cli/internal/bulk"
	"actas-cli/internal/model"
	"actas-cli/internal/report"
)

// Ack is the server's answer to an accepted mutation.
type Ack struct {
	Ref     string       `json:"ref"`
	Version int64        `json:"version"`
	Status  model.Status `json:"status"`
}

// Service mutations are version-guarded: the server applies them only when
// baseVersion equals its stored version, and answers with ConflictError otherwise.
type Service interface {
	ListActas(ctx context.Context, f model.Filter) ([]model.Acta, error)
	GetActa(ctx context.Context, ref string) (model.Acta, error)
	CreateMissingActas(ctx context.Context, year int, term string, f model.Filter) (int, error)

	SaveActa(ctx context.Context, ref string, sheet model.GradeSheet, baseVersion int64) (Ack, error)
	ValidateActa(ctx context.Context, ref string) (model.Metrics, error)
	LockActa(ctx context.Context, ref string, baseVersion int64) (Ack, error)
	UnlockActa(ctx context.Context, ref string, baseVersion int64) (Ack, error)
	PublishActa(ctx context.Context, ref string, baseVersion int64) (Ack, error)
	UnpublishActa(ctx context.Context, ref string, baseVersion int64) (Ack, error)

	// Bulk RPCs apply to whatever version the server holds.
	ValidateBulk(ctx context.Context, refs []string) (bulk.Result, error)
	LockBulk(ctx context.Context, refs []string) (bulk.Result, error)
	PublishBulk(ctx context.Context, refs []string) (bulk.Result, error)

	ExportProjection(ctx context.Context, f model.Filter, kind report.Kind) (report.Projection, error)
}

// Dispatch sends a queued entry to the matching RPC.
func Dispatch(ctx context.Context, svc Service, e model.QueueEntry) (Ack, error) {
	switch e.Operation {
	case model.OpSave:
		if e.Payload == nil {
			return Ack{}, model.InputError{Err: errMissingPayload}
		}
		return svc.SaveActa(ctx, e.TargetRef, *e.Payload, e.BaseVersion)
	case model.OpLock:
		return svc.LockActa(ctx, e.TargetRef, e.BaseVersion)
	case model.OpUnlock:
		return svc.UnlockActa(ctx, e.TargetRef, e.BaseVersion)
	case model.OpPublish:
		return svc.PublishActa(ctx, e.TargetRef, e.BaseVersion)
	case model.OpUnpublish:
		return svc.UnpublishActa(ctx, e.TargetRef, e.BaseVersion)
	}
	return Ack{}, model.InputError{Err: errUnknownOp(e.Operation)}
}
