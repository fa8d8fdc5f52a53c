package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"connectrpc.com/connect"

	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// Ensure RemoteStore implements store.Store
var _ store.Store = (*RemoteStore)(nil)

// RemoteStore implements store.Store over the Connect store service, so the
// session manager, feed subscriber and coordinator run identically against a
// local or a remote store.
type RemoteStore struct {
	token string

	createGroup  *connect.Client[CreateGroupRequest, CreateGroupResponse]
	deleteGroup  *connect.Client[DeleteGroupRequest, DeleteGroupResponse]
	appendDebtee *connect.Client[AppendDebteeRequest, AppendDebteeResponse]
	patchDebtee  *connect.Client[PatchDebteeRequest, PatchDebteeResponse]
	getGroup     *connect.Client[GetGroupRequest, GetGroupResponse]
	watch        *connect.Client[WatchRequest, models.Snapshot]
}

// NewRemoteStore creates a client for the store service at baseURL. The
// bearer token, if non-empty, is attached to every call for identity
// stamping.
func NewRemoteStore(httpClient connect.HTTPClient, baseURL, token string) *RemoteStore {
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	return &RemoteStore{
		token:        token,
		createGroup:  connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+ProcedureCreateGroup, opts...),
		deleteGroup:  connect.NewClient[DeleteGroupRequest, DeleteGroupResponse](httpClient, baseURL+ProcedureDeleteGroup, opts...),
		appendDebtee: connect.NewClient[AppendDebteeRequest, AppendDebteeResponse](httpClient, baseURL+ProcedureAppendDebtee, opts...),
		patchDebtee:  connect.NewClient[PatchDebteeRequest, PatchDebteeResponse](httpClient, baseURL+ProcedurePatchDebtee, opts...),
		getGroup:     connect.NewClient[GetGroupRequest, GetGroupResponse](httpClient, baseURL+ProcedureGetGroup, opts...),
		watch:        connect.NewClient[WatchRequest, models.Snapshot](httpClient, baseURL+ProcedureWatch, opts...),
	}
}

func newRequest[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	return req
}

// Create persists a new group and fills in its store-assigned fields.
func (s *RemoteStore) Create(ctx context.Context, group *models.DebtGroup) error {
	resp, err := s.createGroup.CallUnary(ctx, newRequest(&CreateGroupRequest{
		Name:      group.Name,
		CreatorID: group.CreatorID,
	}, s.token))
	if err != nil {
		return wireError(err)
	}
	*group = resp.Msg.Group
	return nil
}

// Get retrieves one group with its full debtee collection.
func (s *RemoteStore) Get(ctx context.Context, groupID string) (*models.DebtGroup, error) {
	resp, err := s.getGroup.CallUnary(ctx, newRequest(&GetGroupRequest{GroupID: groupID}, s.token))
	if err != nil {
		return nil, wireError(err)
	}
	group := resp.Msg.Group
	return &group, nil
}

// Delete removes a group; missing IDs are a no-op success server-side.
func (s *RemoteStore) Delete(ctx context.Context, groupID string) error {
	_, err := s.deleteGroup.CallUnary(ctx, newRequest(&DeleteGroupRequest{GroupID: groupID}, s.token))
	if err != nil {
		return wireError(err)
	}
	return nil
}

// AppendDebtee atomically inserts one debtee into the group's collection.
func (s *RemoteStore) AppendDebtee(ctx context.Context, groupID string, debtee models.Debtee) error {
	_, err := s.appendDebtee.CallUnary(ctx, newRequest(&AppendDebteeRequest{
		GroupID: groupID,
		Debtee:  debtee,
	}, s.token))
	if err != nil {
		return wireError(err)
	}
	return nil
}

// PatchDebtee atomically updates a single debtee keyed by ID.
func (s *RemoteStore) PatchDebtee(ctx context.Context, groupID, debteeID string, patch store.DebteePatch) error {
	_, err := s.patchDebtee.CallUnary(ctx, newRequest(&PatchDebteeRequest{
		GroupID:  groupID,
		DebteeID: debteeID,
		Paid:     patch.Paid,
	}, s.token))
	if err != nil {
		return wireError(err)
	}
	return nil
}

// SubscribeAll opens a Watch stream and adapts it to store.Subscription.
func (s *RemoteStore) SubscribeAll(ctx context.Context) (store.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.watch.CallServerStream(ctx, newRequest(&WatchRequest{}, s.token))
	if err != nil {
		cancel()
		return nil, wireError(err)
	}

	sub := &remoteSubscription{
		cancel:    cancel,
		snapshots: make(chan models.Snapshot),
		done:      make(chan struct{}),
	}
	go sub.run(stream)
	return sub, nil
}

// Close releases no resources; the underlying HTTP client is shared.
func (s *RemoteStore) Close() error {
	return nil
}

type remoteSubscription struct {
	cancel    context.CancelFunc
	snapshots chan models.Snapshot
	done      chan struct{}

	once sync.Once

	errMu sync.Mutex
	err   error
}

func (sub *remoteSubscription) Snapshots() <-chan models.Snapshot {
	return sub.snapshots
}

func (sub *remoteSubscription) Err() error {
	sub.errMu.Lock()
	defer sub.errMu.Unlock()
	return sub.err
}

func (sub *remoteSubscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)
		sub.cancel()
	})
}

func (sub *remoteSubscription) run(stream *connect.ServerStreamForClient[models.Snapshot]) {
	defer close(sub.snapshots)
	defer stream.Close()

	for stream.Receive() {
		select {
		case sub.snapshots <- *stream.Msg():
		case <-sub.done:
			return
		}
	}

	if err := stream.Err(); err != nil {
		select {
		case <-sub.done:
			// Unsubscribed; the cancellation error is expected.
		default:
			sub.errMu.Lock()
			sub.err = fmt.Errorf("watch stream failed: %w", err)
			sub.errMu.Unlock()
		}
	}
}

// wireError maps Connect codes back onto the store sentinel errors, so
// callers distinguish outcomes with errors.Is regardless of backend.
func wireError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		switch connectErr.Code() {
		case connect.CodeNotFound:
			return fmt.Errorf("%w: %s", store.ErrNotFound, connectErr.Message())
		case connect.CodeAlreadyExists:
			return fmt.Errorf("%w: %s", store.ErrDuplicateDebtee, connectErr.Message())
		}
	}
	return err
}
