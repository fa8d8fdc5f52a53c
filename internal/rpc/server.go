package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// StoreHandler serves the store contract over Connect.
type StoreHandler struct {
	store store.Store
}

// NewStoreHandler creates a handler backed by the given store.
func NewStoreHandler(st store.Store) *StoreHandler {
	return &StoreHandler{store: st}
}

// Mount registers all procedures on the mux. The supplied options are applied
// to every handler, after the JSON codec.
func (h *StoreHandler) Mount(mux *http.ServeMux, opts ...connect.HandlerOption) {
	options := append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux.Handle(ProcedureCreateGroup, connect.NewUnaryHandler(ProcedureCreateGroup, h.createGroup, options...))
	mux.Handle(ProcedureDeleteGroup, connect.NewUnaryHandler(ProcedureDeleteGroup, h.deleteGroup, options...))
	mux.Handle(ProcedureAppendDebtee, connect.NewUnaryHandler(ProcedureAppendDebtee, h.appendDebtee, options...))
	mux.Handle(ProcedurePatchDebtee, connect.NewUnaryHandler(ProcedurePatchDebtee, h.patchDebtee, options...))
	mux.Handle(ProcedureGetGroup, connect.NewUnaryHandler(ProcedureGetGroup, h.getGroup, options...))
	mux.Handle(ProcedureWatch, connect.NewServerStreamHandler(ProcedureWatch, h.watch, options...))
}

func (h *StoreHandler) createGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("group name must not be empty"))
	}

	creatorID := req.Msg.CreatorID
	if creatorID == "" {
		creatorID = IdentityFromContext(ctx)
	}

	group := &models.DebtGroup{
		Name:      name,
		CreatorID: creatorID,
	}
	if err := h.store.Create(ctx, group); err != nil {
		return nil, storeError(err)
	}

	return connect.NewResponse(&CreateGroupResponse{Group: *group}), nil
}

func (h *StoreHandler) deleteGroup(ctx context.Context, req *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error) {
	if err := h.store.Delete(ctx, req.Msg.GroupID); err != nil {
		return nil, storeError(err)
	}
	return connect.NewResponse(&DeleteGroupResponse{}), nil
}

func (h *StoreHandler) appendDebtee(ctx context.Context, req *connect.Request[AppendDebteeRequest]) (*connect.Response[AppendDebteeResponse], error) {
	debtee := req.Msg.Debtee
	if strings.TrimSpace(debtee.Name) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("debtee name must not be empty"))
	}
	if debtee.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("debtee id must be set"))
	}
	if debtee.AddedBy == "" {
		debtee.AddedBy = IdentityFromContext(ctx)
	}

	if err := h.store.AppendDebtee(ctx, req.Msg.GroupID, debtee); err != nil {
		return nil, storeError(err)
	}
	return connect.NewResponse(&AppendDebteeResponse{}), nil
}

func (h *StoreHandler) patchDebtee(ctx context.Context, req *connect.Request[PatchDebteeRequest]) (*connect.Response[PatchDebteeResponse], error) {
	patch := store.DebteePatch{Paid: req.Msg.Paid}
	if err := h.store.PatchDebtee(ctx, req.Msg.GroupID, req.Msg.DebteeID, patch); err != nil {
		return nil, storeError(err)
	}
	return connect.NewResponse(&PatchDebteeResponse{}), nil
}

func (h *StoreHandler) getGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error) {
	group, err := h.store.Get(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, storeError(err)
	}
	return connect.NewResponse(&GetGroupResponse{Group: *group}), nil
}

// watch streams a complete snapshot for every observed change until the
// client disconnects.
func (h *StoreHandler) watch(ctx context.Context, req *connect.Request[WatchRequest], stream *connect.ServerStream[models.Snapshot]) error {
	sub, err := h.store.SubscribeAll(ctx)
	if err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	defer sub.Unsubscribe()

	for snap := range sub.Snapshots() {
		if err := stream.Send(&snap); err != nil {
			return err
		}
	}
	if err := sub.Err(); err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return nil
}

// storeError maps store sentinel errors onto Connect codes.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrDuplicateDebtee):
		return connect.NewError(connect.CodeAlreadyExists, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
